package validation

import (
	"strings"
	"testing"
)

func TestValidateOutputFormat(t *testing.T) {
	for _, format := range []string{"pretty", "csv", "json"} {
		if err := ValidateOutputFormat(format); err != nil {
			t.Errorf("ValidateOutputFormat(%q) unexpected error = %v", format, err)
		}
	}

	invalid := []string{
		"",
		"PRETTY",
		"Json",
		" csv ",
		"prettyprint",
		"pretty-format",
		"xml",
		"yaml",
		"tsv",
	}
	for _, format := range invalid {
		err := ValidateOutputFormat(format)
		if err == nil {
			t.Errorf("ValidateOutputFormat(%q) expected error but got none", format)
			continue
		}
		if !strings.Contains(err.Error(), "pretty, csv or json") {
			t.Errorf("ValidateOutputFormat(%q) error should list the supported formats: %v", format, err)
		}
	}
}
