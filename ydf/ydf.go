// Package ydf implements the YDF dump file format: a file
// header magic/version pair, length-prefixed key/value records, and
// transparent compression dispatch by filename suffix.
package ydf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/yakdb/yakdb-go/batch"
	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
	"github.com/yakdb/yakdb-go/job"
)

const (
	headerMagic   uint16 = 0x6DDF
	headerVersion uint16 = 0x0001
	recordMagic   uint16 = 0x6DE0
)

// WriteHeader writes the 4-byte YDF file header to w.
func WriteHeader(w io.Writer) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[0:2], headerMagic)
	binary.LittleEndian.PutUint16(hdr[2:4], headerVersion)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("ydf: write header: %w", err)
	}
	return nil
}

// VerifyHeader reads and validates the 4-byte YDF file header from r.
func VerifyHeader(r io.Reader) error {
	var hdr [4]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		return fmt.Errorf("ydf: read header: got %d of 4 bytes: %w", n, err)
	}
	magic := binary.LittleEndian.Uint16(hdr[0:2])
	version := binary.LittleEndian.Uint16(hdr[2:4])
	if magic != headerMagic {
		return fmt.Errorf("ydf: header magic mismatch: expected 0x%04x, got 0x%04x", headerMagic, magic)
	}
	if version != headerVersion {
		return fmt.Errorf("ydf: header version mismatch: expected 0x%04x, got 0x%04x", headerVersion, version)
	}
	return nil
}

// WriteRecord appends one key/value record to w.
func WriteRecord(w io.Writer, key, value []byte) error {
	hdr := make([]byte, 18)
	binary.LittleEndian.PutUint16(hdr[0:2], recordMagic)
	binary.LittleEndian.PutUint64(hdr[2:10], uint64(len(key)))
	binary.LittleEndian.PutUint64(hdr[10:18], uint64(len(value)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("ydf: write record header: %w", err)
	}
	if _, err := w.Write(key); err != nil {
		return fmt.Errorf("ydf: write record key: %w", err)
	}
	if _, err := w.Write(value); err != nil {
		return fmt.Errorf("ydf: write record value: %w", err)
	}
	return nil
}

// ReadRecord reads one key/value record from r. It returns ok=false
// with no error when r is exhausted (clean EOF before any header
// bytes).
func ReadRecord(r io.Reader) (key, value []byte, ok bool, err error) {
	hdr := make([]byte, 18)
	n, rerr := io.ReadFull(r, hdr)
	if rerr == io.EOF && n == 0 {
		return nil, nil, false, nil
	}
	if rerr != nil {
		return nil, nil, false, fmt.Errorf("ydf: read record header: %w", rerr)
	}
	magic := binary.LittleEndian.Uint16(hdr[0:2])
	if magic != recordMagic {
		return nil, nil, false, fmt.Errorf("ydf: record magic mismatch: expected 0x%04x, got 0x%04x", recordMagic, magic)
	}
	keyLen := binary.LittleEndian.Uint64(hdr[2:10])
	valueLen := binary.LittleEndian.Uint64(hdr[10:18])
	key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, false, fmt.Errorf("ydf: read record key: %w", err)
	}
	value = make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, false, fmt.Errorf("ydf: read record value: %w", err)
	}
	return key, value, true, nil
}

// compressedWriter wraps dst with the compressor selected by filename's
// suffix, returning a WriteCloser whose Close also closes dst.
func compressedWriter(filename string, dst *os.File) (io.WriteCloser, error) {
	switch {
	case strings.HasSuffix(filename, ".gz"):
		gz := gzip.NewWriter(dst)
		return &closeBoth{WriteCloser: gz, under: dst}, nil
	case strings.HasSuffix(filename, ".xz"):
		return newXzWriter(dst)
	default:
		return nopWriteCloser{dst}, nil
	}
}

func compressedReader(filename string, src *os.File) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(filename, ".gz"):
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("ydf: open gzip reader: %w", err)
		}
		return &closeBothReader{ReadCloser: gz, under: src}, nil
	case strings.HasSuffix(filename, ".xz"):
		return newXzReader(src)
	default:
		return src, nil
	}
}

type nopWriteCloser struct{ *os.File }

func (n nopWriteCloser) Close() error { return n.File.Close() }

type closeBoth struct {
	io.WriteCloser
	under *os.File
}

func (c *closeBoth) Close() error {
	if err := c.WriteCloser.Close(); err != nil {
		c.under.Close()
		return err
	}
	return c.under.Close()
}

type closeBothReader struct {
	io.ReadCloser
	under *os.File
}

func (c *closeBothReader) Close() error {
	if err := c.ReadCloser.Close(); err != nil {
		c.under.Close()
		return err
	}
	return c.under.Close()
}

// newXzWriter pipes writes through the system xz binary, since no xz
// codec (pure-Go or cgo) is vendored anywhere in this repo's
// dependency graph.
func newXzWriter(dst *os.File) (io.WriteCloser, error) {
	cmd := exec.Command("xz", "-z", "-c")
	cmd.Stdout = dst
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ydf: xz stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ydf: start xz: %w", err)
	}
	return &xzWriter{cmd: cmd, stdin: stdin, under: dst}, nil
}

type xzWriter struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	under *os.File
}

func (x *xzWriter) Write(p []byte) (int, error) { return x.stdin.Write(p) }

func (x *xzWriter) Close() error {
	if err := x.stdin.Close(); err != nil {
		x.under.Close()
		return fmt.Errorf("ydf: close xz stdin: %w", err)
	}
	if err := x.cmd.Wait(); err != nil {
		x.under.Close()
		return fmt.Errorf("ydf: xz: %w", err)
	}
	return x.under.Close()
}

// newXzReader pipes reads through the system xz binary.
func newXzReader(src *os.File) (io.ReadCloser, error) {
	cmd := exec.Command("xz", "-d", "-c")
	cmd.Stdin = src
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ydf: xz stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ydf: start xz: %w", err)
	}
	return &xzReader{cmd: cmd, stdout: stdout, under: src}, nil
}

type xzReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	under  *os.File
}

func (x *xzReader) Read(p []byte) (int, error) { return x.stdout.Read(p) }

func (x *xzReader) Close() error {
	x.stdout.Close()
	err := x.cmd.Wait()
	x.under.Close()
	if err != nil {
		return fmt.Errorf("ydf: xz: %w", err)
	}
	return nil
}

// Dump snapshots [startKey, endKey) of table via a passive job and
// writes it to filename in YDF format, with compression selected by
// filename's suffix.
func Dump(conn *client.Sync, filename string, table uint32, startKey, endKey codec.Value, limit, chunkSize int64) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("ydf: create %s: %w", filename, err)
	}
	defer f.Close()

	w, err := compressedWriter(filename, f)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := WriteHeader(w); err != nil {
		return err
	}

	j, err := job.Open(conn, table, chunkSize, limit, startKey, endKey)
	if err != nil {
		return fmt.Errorf("ydf: dump: %w", err)
	}
	for {
		frames, err := j.RequestChunk()
		if err != nil {
			return fmt.Errorf("ydf: dump: %w", err)
		}
		if len(frames) == 0 {
			break
		}
		if len(frames)%2 != 0 {
			return fmt.Errorf("ydf: dump: odd number of key/value frames in job chunk")
		}
		for i := 0; i < len(frames); i += 2 {
			if err := WriteRecord(w, frames[i], frames[i+1]); err != nil {
				return fmt.Errorf("ydf: dump: %w", err)
			}
		}
	}
	return nil
}

// Import streams filename's YDF records into table via an auto-batch
// writer.
func Import(conn *client.Sync, filename string, table uint32) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("ydf: open %s: %w", filename, err)
	}
	defer f.Close()

	r, err := compressedReader(filename, f)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := VerifyHeader(r); err != nil {
		return fmt.Errorf("ydf: import: %w", err)
	}

	w := batch.New(conn, table, false, false)
	defer w.Close()

	for {
		key, value, ok, err := ReadRecord(r)
		if err != nil {
			return fmt.Errorf("ydf: import: %w", err)
		}
		if !ok {
			break
		}
		if err := w.PutSingle(key, value); err != nil {
			return fmt.Errorf("ydf: import: %w", err)
		}
	}
	return nil
}

// CopyTable snapshots srcTable to a scoped temporary YDF file, then
// either truncates dstTable or deletes [startKey, endKey) of it, then
// streams the snapshot into dstTable. The scoped temp directory is
// removed on every exit path.
func CopyTable(conn *client.Sync, srcTable, dstTable uint32, truncate bool, extension string, startKey, endKey codec.Value, limit, chunkSize int64) error {
	tmpDir, err := os.MkdirTemp("", "yakdb-copy-")
	if err != nil {
		return fmt.Errorf("ydf: copy table: create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	filename := fmt.Sprintf("%s/t%d-t%d-copy.ydf%s", tmpDir, srcTable, dstTable, extension)
	if err := Dump(conn, filename, srcTable, startKey, endKey, limit, chunkSize); err != nil {
		return fmt.Errorf("ydf: copy table: dump: %w", err)
	}

	if truncate {
		if err := conn.TruncateTable(dstTable); err != nil {
			return fmt.Errorf("ydf: copy table: truncate: %w", err)
		}
	} else {
		if err := conn.DeleteRange(dstTable, startKey, endKey, nil); err != nil {
			return fmt.Errorf("ydf: copy table: delete range: %w", err)
		}
	}

	if err := Import(conn, filename, dstTable); err != nil {
		return fmt.Errorf("ydf: copy table: import: %w", err)
	}
	return nil
}
