package staging

import "strings"

// Property keys understood by TransferClientProperties.FromMap. Anything
// else ends up in Extra and is handed to the preparation handler untouched.
const (
	AccessPointKey       = "accessPoint"
	ProcessorsKey        = "stagingProcessors"
	StagingURLKey        = "stagingUrl"
	ClientAccessURLKey   = "clientAccessUrl"
	processorIDSeparator = ","
)

// TransferClientProperties carries the caller-supplied knobs for a schedule
// request: which access point to move data through, which staging processors
// to assign (by unique identifier) and optional URL hints. The service merges
// the processor list with the group defaults, assigned entries winning.
type TransferClientProperties struct {
	AccessPointID   string
	ProcessorIDs    []string
	StagingURL      string
	ClientAccessURL string
	Extra           map[string]string
}

func NewTransferClientProperties(accessPointID string) *TransferClientProperties {
	return &TransferClientProperties{AccessPointID: accessPointID}
}

// FromMap builds properties out of a flat string map, the shape transfer
// requests arrive in over the wire.
func FromMap(m map[string]string) *TransferClientProperties {
	p := &TransferClientProperties{}
	for key, value := range m {
		switch key {
		case AccessPointKey:
			p.AccessPointID = value
		case ProcessorsKey:
			for _, id := range strings.Split(value, processorIDSeparator) {
				if id = strings.TrimSpace(id); id != "" {
					p.ProcessorIDs = append(p.ProcessorIDs, id)
				}
			}
		case StagingURLKey:
			p.StagingURL = value
		case ClientAccessURLKey:
			p.ClientAccessURL = value
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[key] = value
		}
	}

	return p
}

func (p *TransferClientProperties) ToMap() map[string]string {
	m := make(map[string]string)
	for key, value := range p.Extra {
		m[key] = value
	}

	if p.AccessPointID != "" {
		m[AccessPointKey] = p.AccessPointID
	}

	if len(p.ProcessorIDs) != 0 {
		m[ProcessorsKey] = strings.Join(p.ProcessorIDs, processorIDSeparator)
	}

	if p.StagingURL != "" {
		m[StagingURLKey] = p.StagingURL
	}

	if p.ClientAccessURL != "" {
		m[ClientAccessURLKey] = p.ClientAccessURL
	}

	return m
}
