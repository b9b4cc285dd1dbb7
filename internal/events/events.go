// Package events defines the JSON messages published to the stats bus.
package events

import "encoding/json"

/*
latencySnapshot (Player -> bus)

	{
		id: 'latencySnapshot',
		instanceId: <String>,
		eye: 'left' | 'right',
		snapshot: { camera, vidConv, enc, rtpPay, udpStream, rtpDepay,
		            dec, queue, presentation, totalLatency, fps, frameId, ... }
	}
*/
type LatencySnapshot struct {
	Id         string          `json:"id"`
	InstanceId string          `json:"instanceId,omitempty"`
	Eye        string          `json:"eye"`
	Snapshot   json.RawMessage `json:"snapshot"`
}

const LatencySnapshotKey = "latencySnapshot"

func NewLatencySnapshot(instanceId, eye string, snapshot interface{}) (*LatencySnapshot, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return &LatencySnapshot{
		Id:         LatencySnapshotKey,
		InstanceId: instanceId,
		Eye:        eye,
		Snapshot:   raw,
	}, nil
}

/*
telemetrySample (Player -> bus)

	{
		id: 'telemetrySample',
		topic: <String>,  // e.g. '/robot/battery'
		type: <String>,   // e.g. 'sensor_msgs/BatteryState'
		payload: <Object>
	}
*/
type TelemetrySample struct {
	Id      string          `json:"id"`
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const TelemetrySampleKey = "telemetrySample"

// Decode identifies a bus message by its id field and unmarshals it into
// the matching event type. Unknown ids return (id, nil).
func Decode(message []byte) (string, interface{}) {
	var head struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(message, &head); err != nil {
		return "", nil
	}
	switch head.Id {
	case LatencySnapshotKey:
		var e LatencySnapshot
		if err := json.Unmarshal(message, &e); err != nil {
			return head.Id, nil
		}
		return head.Id, e
	case TelemetrySampleKey:
		var e TelemetrySample
		if err := json.Unmarshal(message, &e); err != nil {
			return head.Id, nil
		}
		return head.Id, e
	default:
		return head.Id, nil
	}
}
