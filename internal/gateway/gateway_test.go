package gateway

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(timestamp float64, compressed byte, topic, msgType, payload string) []byte {
	var out []byte
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, math.Float64bits(timestamp))
	out = append(out, ts...)
	out = append(out, compressed)
	out = append(out, []byte(topic)...)
	out = append(out, 0)
	out = append(out, []byte(msgType)...)
	out = append(out, 0)
	out = append(out, []byte(payload)...)
	return out
}

func TestParseFrame(t *testing.T) {
	datagram := frame(1234.5, 0, "/robot/battery", "sensor_msgs/BatteryState", `{"voltage":[12.6]}`)

	ts, compressed, topic, msgType, payload, err := ParseFrame(datagram)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, ts)
	assert.EqualValues(t, 0, compressed)
	assert.Equal(t, "/robot/battery", topic)
	assert.Equal(t, "sensor_msgs/BatteryState", msgType)
	assert.JSONEq(t, `{"voltage":[12.6]}`, string(payload))
}

func TestParseFrame_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		datagram []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"missing topic terminator", append(make([]byte, 9), []byte("topic-without-nul")...)},
		{"missing type terminator", append(append(make([]byte, 9), 't', 0), []byte("type")...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, _, _, err := ParseFrame(tt.datagram)
			assert.Error(t, err)
		})
	}
}

func TestSchemaRegistry_RegisterIfSchema(t *testing.T) {
	r := NewSchemaRegistry()

	// Data before its schema: not a schema, and not parseable yet.
	isSchema, err := r.RegisterIfSchema("sensor_msgs/BatteryState", []byte(`{"voltage":[12.6]}`))
	require.NoError(t, err)
	assert.False(t, isSchema)
	assert.False(t, r.HasSchema("sensor_msgs/BatteryState"))

	schema := `{"name":"BatteryState","namespace":"sensor_msgs","fields":{"voltage":"float32"}}`
	isSchema, err = r.RegisterIfSchema("sensor_msgs/BatteryState", []byte(schema))
	require.NoError(t, err)
	assert.True(t, isSchema)
	assert.True(t, r.HasSchema("sensor_msgs/BatteryState"))
}

func TestSchemaRegistry_PartialSchemaKeysAreData(t *testing.T) {
	r := NewSchemaRegistry()
	// name+namespace but no fields: a data message, not a schema.
	isSchema, err := r.RegisterIfSchema("x", []byte(`{"name":"a","namespace":"b"}`))
	require.NoError(t, err)
	assert.False(t, isSchema)
}

func TestParsedMessage_SingleElementUnwrap(t *testing.T) {
	r := NewSchemaRegistry()
	schema := `{"name":"BatteryState","namespace":"sensor_msgs","fields":{"voltage":"float32"}}`
	_, err := r.RegisterIfSchema("sensor_msgs/BatteryState", []byte(schema))
	require.NoError(t, err)

	msg, err := r.BuildParsedMessage("sensor_msgs/BatteryState", "/robot/battery",
		[]byte(`{"voltage":[12.6]}`))
	require.NoError(t, err)

	v, err := Get[float32](msg, "voltage")
	require.NoError(t, err)
	assert.InDelta(t, 12.6, float64(v), 0.0001)
}

func TestParsedMessage_DottedPathLookup(t *testing.T) {
	r := NewSchemaRegistry()
	schema := `{"name":"Clock","namespace":"rosgraph_msgs","fields":{"clock":"time"}}`
	_, err := r.RegisterIfSchema("rosgraph_msgs/Clock", []byte(schema))
	require.NoError(t, err)

	msg, err := r.BuildParsedMessage("rosgraph_msgs/Clock", "/loki_1/chassis/clock",
		[]byte(`{"clock":[{"sec":1700000000,"nanosec":12}]}`))
	require.NoError(t, err)

	sec, err := Get[int64](msg, "clock.sec")
	require.NoError(t, err)
	assert.EqualValues(t, 1700000000, sec)
}

func TestParsedMessage_Errors(t *testing.T) {
	r := NewSchemaRegistry()
	schema := `{"name":"S","namespace":"n","fields":{}}`
	_, err := r.RegisterIfSchema("n/S", []byte(schema))
	require.NoError(t, err)

	msg, err := r.BuildParsedMessage("n/S", "/t", []byte(`{"a":{"b":1},"s":"text"}`))
	require.NoError(t, err)

	_, err = Get[float64](msg, "a.missing")
	assert.ErrorContains(t, err, "not found")

	_, err = Get[float64](msg, "s.b")
	assert.ErrorContains(t, err, "not an object")

	_, err = Get[float64](msg, "s")
	assert.ErrorContains(t, err, "type")

	_, err = r.BuildParsedMessage("unknown/Type", "/t", []byte(`{}`))
	assert.ErrorContains(t, err, "no schema")
}

func TestGet_NumericConversions(t *testing.T) {
	r := NewSchemaRegistry()
	_, err := r.RegisterIfSchema("n/S", []byte(`{"name":"S","namespace":"n","fields":{}}`))
	require.NoError(t, err)

	msg, err := r.BuildParsedMessage("n/S", "/t", []byte(`{"v":41}`))
	require.NoError(t, err)

	i, err := Get[int](msg, "v")
	require.NoError(t, err)
	assert.Equal(t, 41, i)

	f, err := Get[float64](msg, "v")
	require.NoError(t, err)
	assert.Equal(t, 41.0, f)
}
