package log

import "testing"

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"direction in", DirectionIn.String(), "IN"},
		{"direction out", DirectionOut.String(), "OUT"},
		{"direction unknown", Direction(99).String(), "UNKNOWN"},
		{"layer transport", LayerTransport.String(), "TRANSPORT"},
		{"layer wire", LayerWire.String(), "WIRE"},
		{"layer service", LayerService.String(), "SERVICE"},
		{"layer unknown", Layer(99).String(), "UNKNOWN"},
		{"category message", CategoryMessage.String(), "MESSAGE"},
		{"category control", CategoryControl.String(), "CONTROL"},
		{"category state", CategoryState.String(), "STATE"},
		{"category error", CategoryError.String(), "ERROR"},
		{"entity connection", StateEntityConnection.String(), "CONNECTION"},
		{"entity cbs", StateEntityCBS.String(), "CBS"},
		{"entity sender", StateEntitySender.String(), "SENDER"},
		{"entity receiver", StateEntityReceiver.String(), "RECEIVER"},
		{"entity transport", StateEntityTransport.String(), "TRANSPORT"},
		{"entity unknown", StateEntity(99).String(), "UNKNOWN"},
		{"token put", TokenPut.String(), "PUT"},
		{"token reply", TokenReply.String(), "REPLY"},
		{"token timeout", TokenTimeout.String(), "TIMEOUT"},
		{"token unknown", TokenEventType(99).String(), "UNKNOWN"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
