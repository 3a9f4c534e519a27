package bus

import "testing"

func TestParseEncodeRoundTrip(t *testing.T) {
	tests := []string{
		"+SDOWN pg-m h1 0/50",
		"-SDOWN pg-m h1",
		"+ODOWN pg-m h1",
		"+SELECT h2 h1",
		"+NEWMASTER",
	}

	for _, line := range tests {
		msg, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", line, err)
		}
		if got := msg.Encode(); got != line {
			t.Errorf("Encode() = %q, want %q", got, line)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, line := range []string{"", "+SDOWN pg-m h1", "+WHATEVER a b", "+SELECT h2"} {
		if _, err := Parse(line); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", line)
		}
	}
}

func TestChannelName(t *testing.T) {
	if ch := ChannelName("mycluster"); ch != "pgsentinel-mycluster" {
		t.Errorf("ChannelName = %q", ch)
	}
	if ch := ChannelName("my-cluster"); ch != "pgsentinel-my-cluster" {
		t.Errorf("ChannelName = %q", ch)
	}
}
