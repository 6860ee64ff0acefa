package main

import (
	"flag"
	"log"
	"os"

	"github.com/macropower/k8r/pkg/config"
)

var outFile = flag.String("o", config.SchemaFile, "Output file for the generated schema")

func main() {
	flag.Parse()

	data, err := config.Schema()
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	err = os.WriteFile(*outFile, data, 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
