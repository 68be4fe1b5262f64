package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml> <openapi.yaml> [more...]\n", os.Args[0])
		os.Exit(2)
	}
	docs := make([]namedDoc, 0, len(os.Args)-1)
	for _, path := range os.Args[1:] {
		doc, err := loadDoc(path)
		if err != nil {
			exitErr(err)
		}
		docs = append(docs, namedDoc{name: path, doc: doc})
	}
	if err := checkDocs(docs); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
