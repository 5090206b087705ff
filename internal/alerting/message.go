package alerting

import "fmt"

// Room is the location a device is installed in.
type Room struct {
	ID     string `json:"_id"`
	Number string `json:"number"`
	Name   string `json:"name"`
	Floor  int    `json:"floor"`
}

// Label names the room for humans, falling back to its number
func (r Room) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return "Room " + r.Number
}

// DeviceInfo is the directory record of a device.
type DeviceInfo struct {
	ID   string `json:"_id"`
	Room Room   `json:"roomId"`
}

// FormatMessage builds the human alert text. Phrasing depends on the sensor
// type and metric together; other pairs get the generic text.
func FormatMessage(sensorType, metric string, room Room) string {
	label := room.Label()
	switch sensorType + "/" + metric {
	case "mq4/gas":
		return fmt.Sprintf("Danger! High gas level detected in %s", label)
	case "dht22/temperature":
		return fmt.Sprintf("Alert! Excessive temperature in %s", label)
	case "dht22/humidity":
		return fmt.Sprintf("Warning! Critical humidity in %s", label)
	default:
		return fmt.Sprintf("Alert! Sensor %s exceeds limits in %s", sensorType, label)
	}
}
