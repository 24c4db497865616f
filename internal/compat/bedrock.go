package compat

// Bedrock handles the AWS Bedrock wire format. Bedrock with Anthropic
// models uses the same Messages API shape as direct Anthropic, so this
// compat embeds Anthropic and delegates all translation to it; the only
// differences are authentication (AWS SigV4, applied by
// internal/providermanager before the request leaves the process) and
// the URL/model-id conventions carried in the manifest. Grounded
// directly on internal/adapters/bedrock.go's embed-and-delegate shape.
type Bedrock struct {
	*Anthropic
}

// NewBedrock returns a Compat delegating to a fresh Anthropic translator.
func NewBedrock() *Bedrock {
	return &Bedrock{Anthropic: NewAnthropic()}
}

func (b *Bedrock) Name() string { return "bedrock" }

func (b *Bedrock) BuildPayload(req BuildRequest) (map[string]any, error) {
	payload, err := b.Anthropic.BuildPayload(req)
	if err != nil {
		return nil, err
	}
	// Bedrock's invoke endpoint takes the model in the URL path, not the
	// payload body.
	delete(payload, "model")
	payload["anthropic_version"] = "bedrock-2023-05-31"
	return payload, nil
}

var _ Compat = (*Bedrock)(nil)
