package pkfinder

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos-pkfinder/internal/sqltype"
)

func TestTableRef_String(t *testing.T) {
	assert.Equal(t, "APP.ORDERS", TableRef{Schema: "APP", Table: "ORDERS"}.String())
	assert.Equal(t, "ORDERS", TableRef{Table: "ORDERS"}.String())
}

func TestPrimaryKey_Helpers(t *testing.T) {
	pk := &PrimaryKey{Table: "ORDERS", Columns: []KeyColumn{
		AutoGeneratedColumn("ID", sqltype.TypeLong),
		SequenceColumn("REV", sqltype.TypeInt, "APP.SEQ_REV"),
	}}

	assert.Equal(t, []string{"ID", "REV"}, pk.ColumnNames())

	col, ok := pk.Column("REV")
	require.True(t, ok)
	assert.Equal(t, KindSequence, col.Kind)
	assert.Equal(t, "APP.SEQ_REV", col.SequenceName)

	_, ok = pk.Column("MISSING")
	assert.False(t, ok)

	assert.False(t, pk.IsAutoGenerated())
	pk.Columns = pk.Columns[:1]
	assert.True(t, pk.IsAutoGenerated())

	var nilKey *PrimaryKey
	assert.Nil(t, nilKey.ColumnNames())
	assert.False(t, nilKey.IsAutoGenerated())
	_, ok = nilKey.Column("ID")
	assert.False(t, ok)
}

func TestKeyColumn_JSON(t *testing.T) {
	data, err := json.Marshal([]KeyColumn{
		PlainColumn("CODE", sqltype.TypeString),
		SequenceColumn("ID", sqltype.TypeLong, "seq_foo"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"CODE","type":"string","kind":"plain"},
		{"name":"ID","type":"long","kind":"sequence","sequence":"seq_foo"}
	]`, string(data))
}

func TestDiscoveryError(t *testing.T) {
	inner := errors.New("io timeout")
	err := &DiscoveryError{Op: OpColumnMetadata, Schema: "APP", Table: "ORDERS", Column: "ID", Err: inner}

	assert.Equal(t, "pkfinder: column metadata: schema=APP: table=ORDERS: column=ID: io timeout", err.Error())
	assert.ErrorIs(t, err, ErrDiscovery)
	assert.ErrorIs(t, err, inner)
	assert.NotErrorIs(t, err, ErrSequenceLookup)

	seqErr := &SequenceLookupError{Schema: "APP", Table: "ORDERS", Column: "ID", Err: inner}
	assert.Equal(t, "sequence lookup for APP.ORDERS.ID: io timeout", seqErr.Error())
	assert.ErrorIs(t, seqErr, ErrSequenceLookup)
	assert.ErrorIs(t, seqErr, inner)
}
