package esp

import "testing"

func TestParseTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  Topic
	}{
		{"esp/status", Topic{Kind: KindStatus}},
		{"esp/42/moisture", Topic{Kind: KindReading, ID: 42, Metric: "moisture"}},
		{"esp/7/temperature", Topic{Kind: KindReading, ID: 7, Metric: "temperature"}},
		{"esp/AA:BB:CC/42/moisture", Topic{Kind: KindReading, ID: 42, Metric: "moisture", MAC: "AA:BB:CC"}},
		{"esp/device/config/request", Topic{Kind: KindConfigRequest}},
		{"esp/device/calibration", Topic{Kind: KindCalibration}},
		{"esp/device/command", Topic{Kind: KindCommand}},

		{"esp/42/humidity", Topic{Kind: KindUnknown}},
		{"esp/abc/moisture", Topic{Kind: KindUnknown}},
		{"esp/0/moisture", Topic{Kind: KindUnknown}},
		{"esp/-3/moisture", Topic{Kind: KindUnknown}},
		{"esp/device/moisture", Topic{Kind: KindUnknown}},
		{"esp/device/config", Topic{Kind: KindUnknown}},
		{"esp/status/extra", Topic{Kind: KindUnknown}},
		{"esp", Topic{Kind: KindUnknown}},
		{"other/status", Topic{Kind: KindUnknown}},
		{"leafbox/system/status", Topic{Kind: KindUnknown}},
		{"", Topic{Kind: KindUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := ParseTopic("esp", tt.topic); got != tt.want {
				t.Errorf("ParseTopic(%q) = %+v, want %+v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestParseTopic_CustomRoot(t *testing.T) {
	if got := ParseTopic("garden", "garden/3/moisture"); got.Kind != KindReading || got.ID != 3 {
		t.Errorf("ParseTopic(garden) = %+v", got)
	}
	if got := ParseTopic("garden", "esp/3/moisture"); got.Kind != KindUnknown {
		t.Errorf("topic outside root classified as %v", got.Kind)
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindStatus:        "status",
		KindReading:       "reading",
		KindConfigRequest: "config_request",
		KindCalibration:   "calibration",
		KindCommand:       "command",
		KindUnknown:       "unknown",
	} {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
