package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"kairos-pkfinder/internal/pkfinder"
	"kairos-pkfinder/internal/sqltype"
)

func sampleReport() Report {
	return Report{
		RunID: "run-1",
		Results: []Result{
			{
				Schema: "APP",
				Table:  "ORDERS",
				PrimaryKey: &pkfinder.PrimaryKey{Table: "ORDERS", Columns: []pkfinder.KeyColumn{
					pkfinder.SequenceColumn("ID", sqltype.TypeLong, "seq_foo"),
					pkfinder.PlainColumn("LINE", sqltype.TypeShort),
				}},
			},
			{Schema: "APP", Table: "AUDIT"},
		},
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatText, sampleReport()))

	want := "" +
		"TABLE       COLUMN  TYPE   KIND      SEQUENCE\n" +
		"APP.ORDERS  ID      long   sequence  seq_foo\n" +
		"APP.ORDERS  LINE    short  plain     -\n" +
		"APP.AUDIT   -       -      -         -\n"
	assert.Equal(t, want, buf.String())
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, sampleReport()))

	assert.JSONEq(t, `{
		"run_id": "run-1",
		"tables": [
			{
				"schema": "APP",
				"table": "ORDERS",
				"primary_key": {
					"table": "ORDERS",
					"columns": [
						{"name": "ID", "type": "long", "kind": "sequence", "sequence": "seq_foo"},
						{"name": "LINE", "type": "short", "kind": "plain"}
					]
				}
			},
			{"schema": "APP", "table": "AUDIT", "primary_key": null}
		]
	}`, buf.String())
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatYAML, sampleReport()))

	var doc struct {
		RunID  string `yaml:"run_id"`
		Tables []struct {
			Table      string `yaml:"table"`
			PrimaryKey *struct {
				Columns []map[string]string `yaml:"columns"`
			} `yaml:"primary_key"`
		} `yaml:"tables"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "run-1", doc.RunID)
	require.Len(t, doc.Tables, 2)
	require.NotNil(t, doc.Tables[0].PrimaryKey)
	assert.Equal(t, map[string]string{"name": "ID", "type": "long", "kind": "sequence", "sequence": "seq_foo"},
		doc.Tables[0].PrimaryKey.Columns[0])
	assert.Nil(t, doc.Tables[1].PrimaryKey)
	assert.Contains(t, buf.String(), "primary_key: null")
}

func TestRender_UnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, "csv", sampleReport())
	assert.ErrorContains(t, err, `unsupported output format "csv"`)
}
