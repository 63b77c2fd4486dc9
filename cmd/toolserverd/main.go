// Command toolserverd runs the in-container tool server (spec.md §4.6):
// a small, statically-linked binary that StartToolServer copies into each
// sandbox container and launches in the background, rooted at -workspace.
package main

import (
	"flag"
	"log"

	"github.com/prbench/prbench/pkg/toolserver"
)

func main() {
	workspace := flag.String("workspace", "/workspace", "directory the tool server's paths are resolved against")
	addr := flag.String("addr", ":8751", "address to listen on")
	flag.Parse()

	s := toolserver.New(*workspace)
	log.Printf("toolserverd listening on %s, rooted at %s", *addr, *workspace)
	if err := s.Start(*addr); err != nil {
		log.Fatal(err)
	}
}
