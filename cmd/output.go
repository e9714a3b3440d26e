package main

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func parseLeadID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid lead id %q", arg)
	}
	return id, nil
}
