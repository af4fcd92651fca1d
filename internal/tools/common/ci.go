package common

import (
	"encoding/json"
	"os"
)

type ciResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PrintCIResult writes one JSON line to stdout for CI pipelines.
func PrintCIResult(ok bool, title string, details []string, err error) {
	res := ciResult{OK: ok, Title: title, Details: details}
	if err != nil {
		res.Error = err.Error()
	}
	_ = json.NewEncoder(os.Stdout).Encode(res)
}
