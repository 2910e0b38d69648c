package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"eventcal/internal/config"
	"eventcal/internal/pipeline"
	"eventcal/internal/schema"
)

// cmdValidate implements `eventcal validate <path>`: exit 0 with an OK line
// on stdout, or exit 1 with one Error line per problem on stderr.
func cmdValidate(conf *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: Usage: eventcal validate <event-file>")
		return 1
	}

	v, _, err := pipeline.NewValidator(conf)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if !validateFile(v, args[0], stdout, stderr) {
		return 1
	}
	return 0
}

func validateFile(v *schema.Validator, path string, stdout, stderr io.Writer) bool {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: File not found: %s\n", path)
		return false
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return false
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(stderr, "Error: Invalid JSON: %v\n", err)
		return false
	}

	if errs := v.ValidateDocument(doc); len(errs) > 0 {
		for _, fe := range errs {
			fmt.Fprintf(stderr, "Error: %s\n", fe.Error())
		}
		return false
	}
	fmt.Fprintf(stdout, "OK: %s\n", path)
	return true
}
