package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

func apiCmd(ctx Context, args []string) error {
	if len(args) == 0 || args[0] != "raw" {
		return errors.New("api subcommand required: raw")
	}
	fs := newFlagSet("api raw")
	method := fs.String("method", "GET", "http method")
	path := fs.String("path", "/", "path on the trade server")
	body := fs.String("body", "", "json body")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	m := strings.ToUpper(strings.TrimSpace(*method))
	if m == "" {
		m = http.MethodGet
	}
	var anyBody any
	if strings.TrimSpace(*body) != "" {
		if !json.Valid([]byte(*body)) {
			return errors.New("--body must be valid json")
		}
		if err := json.Unmarshal([]byte(*body), &anyBody); err != nil {
			return err
		}
	}

	c, err := client(ctx)
	if err != nil {
		return err
	}
	resp, err := c.Raw(ctx.ctx(), m, strings.TrimSpace(*path), anyBody)
	if err != nil {
		return err
	}
	return ctx.write(resp)
}
