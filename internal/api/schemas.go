package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// commandSchemas holds the compiled validators for inbound commands.
type commandSchemas struct {
	send    *jsonschema.Schema
	respond *jsonschema.Schema
	player  *jsonschema.Schema
	move    *jsonschema.Schema
}

func compileSchemas() (*commandSchemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7

	load := func(name string) (*jsonschema.Schema, error) {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		url := "mem://schemas/" + name
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		return s, nil
	}

	var (
		out commandSchemas
		err error
	)
	if out.send, err = load("send_letter.schema.json"); err != nil {
		return nil, err
	}
	if out.respond, err = load("respond.schema.json"); err != nil {
		return nil, err
	}
	if out.player, err = load("add_player.schema.json"); err != nil {
		return nil, err
	}
	if out.move, err = load("move_player.schema.json"); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeValidated checks body against s and then decodes it into dst.
func decodeValidated(s *jsonschema.Schema, body []byte, dst any) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func encodeJSON(w io.Writer, data any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
