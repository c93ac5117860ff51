// Command basic demonstrates iterating an entire table with a
// KeyValueIterator: batched scans with a local buffer, so arbitrarily
// large tables can be walked in constant memory.
package main

import (
	"fmt"
	"log"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/iterator"
)

func main() {
	conn, err := client.NewSync(client.WithEndpoint(client.DefaultRequestReplyEndpoint))
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	it := iterator.NewKeyValueIterator(conn, 1, nil, nil, 1000, nil, nil, false)
	for {
		kv, ok, err := it.Next()
		if err != nil {
			log.Fatal(err)
		}
		if !ok {
			break
		}
		fmt.Printf("%s,%s\n", kv.Key, kv.Value)
	}
}
