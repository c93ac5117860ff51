// Package job implements the passive-job client: opening a
// server-side streaming scan job and pulling its chunks by APID.
package job

import (
	"fmt"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
)

// Job owns a server-side passive scan job, identified by an opaque
// APID. The job is terminated implicitly when the server has
// no more data to deliver"). A Job must not be reused across
// connections once its APID is issued.
type Job struct {
	conn *client.Sync
	apid int64
	done bool
}

// Open initializes a passive job over [startKey, endKey) of table,
// paged in chunkSize-sized pages up to scanLimit total records (0 =
// unbounded).
func Open(conn *client.Sync, table uint32, chunkSize, scanLimit int64, startKey, endKey codec.Value) (*Job, error) {
	apid, err := conn.InitJob(table, chunkSize, scanLimit, startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("job: open: %w", err)
	}
	return &Job{conn: conn, apid: apid}, nil
}

// APID returns the opaque job handle the server assigned.
func (j *Job) APID() int64 { return j.apid }

// Done reports whether the server has signaled no further data.
func (j *Job) Done() bool { return j.done }

// RequestChunk pulls the next chunk of data frames. Once the server
// reports no data, subsequent calls keep returning an empty chunk with
// Done()==true rather than erroring.
func (j *Job) RequestChunk() ([][]byte, error) {
	if j.done {
		return nil, nil
	}
	data, done, err := j.conn.RequestChunk(j.apid)
	if err != nil {
		return nil, fmt.Errorf("job: request chunk: %w", err)
	}
	j.done = done
	return data, nil
}
