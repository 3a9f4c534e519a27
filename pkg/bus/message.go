package bus

import (
	"fmt"
	"strings"
)

// Kind identifies one of the five message types the promotion protocol
// exchanges on a cluster's channel.
type Kind string

const (
	KindSDownPlus  Kind = "+SDOWN"
	KindSDownMinus Kind = "-SDOWN"
	KindODown      Kind = "+ODOWN"
	KindSelect     Kind = "+SELECT"
	KindNewMaster  Kind = "+NEWMASTER"
)

// Message is a parsed protocol line. Fields not carried by a given Kind
// are left zero.
type Message struct {
	Kind          Kind
	PrimaryFqdn   string // +SDOWN, -SDOWN, +ODOWN
	VoterHost     string // +SDOWN, -SDOWN, +ODOWN, +SELECT
	WalPos        string // +SDOWN only
	CandidateFqdn string // +SELECT only
}

// Encode renders a Message back into its ASCII wire form.
func (m Message) Encode() string {
	switch m.Kind {
	case KindSDownPlus:
		return fmt.Sprintf("%s %s %s %s", m.Kind, m.PrimaryFqdn, m.VoterHost, m.WalPos)
	case KindSDownMinus:
		return fmt.Sprintf("%s %s %s", m.Kind, m.PrimaryFqdn, m.VoterHost)
	case KindODown:
		return fmt.Sprintf("%s %s %s", m.Kind, m.PrimaryFqdn, m.VoterHost)
	case KindSelect:
		return fmt.Sprintf("%s %s %s", m.Kind, m.CandidateFqdn, m.VoterHost)
	case KindNewMaster:
		return string(m.Kind)
	default:
		return ""
	}
}

// Parse decodes a single whitespace-tokenized protocol line.
func Parse(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, fmt.Errorf("bus: empty message")
	}

	switch Kind(fields[0]) {
	case KindSDownPlus:
		if len(fields) != 4 {
			return Message{}, fmt.Errorf("bus: malformed %s: %q", fields[0], line)
		}
		return Message{Kind: KindSDownPlus, PrimaryFqdn: fields[1], VoterHost: fields[2], WalPos: fields[3]}, nil
	case KindSDownMinus:
		if len(fields) != 3 {
			return Message{}, fmt.Errorf("bus: malformed %s: %q", fields[0], line)
		}
		return Message{Kind: KindSDownMinus, PrimaryFqdn: fields[1], VoterHost: fields[2]}, nil
	case KindODown:
		if len(fields) != 3 {
			return Message{}, fmt.Errorf("bus: malformed %s: %q", fields[0], line)
		}
		return Message{Kind: KindODown, PrimaryFqdn: fields[1], VoterHost: fields[2]}, nil
	case KindSelect:
		if len(fields) != 3 {
			return Message{}, fmt.Errorf("bus: malformed %s: %q", fields[0], line)
		}
		return Message{Kind: KindSelect, CandidateFqdn: fields[1], VoterHost: fields[2]}, nil
	case KindNewMaster:
		return Message{Kind: KindNewMaster}, nil
	default:
		return Message{}, fmt.Errorf("bus: unknown message kind %q", fields[0])
	}
}

// ChannelName returns the pub/sub channel a cluster's Electors and
// HealthProbe communicate over. Every caller already knows the cluster
// name it's building a channel for; there is no path in this daemon that
// only has the channel string and needs to recover the name from it.
func ChannelName(clusterName string) string {
	return "pgsentinel-" + clusterName
}
