// Command graph demonstrates the node/edge overlay: three nodes and a
// cycle of edges between them, then prints the outgoing edges of each.
package main

import (
	"fmt"
	"log"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/graph"
)

func main() {
	conn, err := client.NewSync(client.WithEndpoint(client.DefaultRequestReplyEndpoint))
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	g := graph.New(conn, 2, 3, 4)

	for _, id := range []string{"a", "b", "c"} {
		if err := g.PutNode(id, nil); err != nil {
			log.Fatal(err)
		}
	}

	edges := [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}}
	for _, e := range edges {
		if err := g.PutEdge("", e[0], e[1], nil); err != nil {
			log.Fatal(err)
		}
	}

	for _, id := range []string{"a", "b", "c"} {
		out, err := g.OutgoingEdges("", id)
		if err != nil {
			log.Fatal(err)
		}
		for _, e := range out {
			fmt.Printf("%s -> %s\n", e.Source, e.Target)
		}
	}
}
