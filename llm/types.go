package llm

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversational turn.
type Message struct {
	Role       Role
	Content    string
	Name       string // Optional participant name
	ToolCallID string // Set on RoleTool messages
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        []string
	Stream      bool

	// Metadata is passed through to adapters untouched.
	Metadata map[string]string
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Messages != nil {
		c.Messages = make([]Message, len(r.Messages))
		copy(c.Messages, r.Messages)
	}
	if r.Stop != nil {
		c.Stop = make([]string, len(r.Stop))
		copy(c.Stop, r.Stop)
	}
	if r.Temperature != nil {
		t := *r.Temperature
		c.Temperature = &t
	}
	if r.TopP != nil {
		p := *r.TopP
		c.TopP = &p
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Response is a complete, non-streamed completion.
type Response struct {
	ID      string
	Model   string
	Choices []Choice
	Usage   *Usage
}

// Text returns the content of the first choice, or "" when there is none.
func (r *Response) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Choice is one candidate completion.
type Choice struct {
	Index        int
	Message      Message
	FinishReason string
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Chunk is an incremental piece of a streamed completion.
type Chunk struct {
	ID      string
	Model   string
	Choices []ChunkChoice
}

// ChunkChoice carries the delta for one candidate.
type ChunkChoice struct {
	Index        int
	Delta        Delta
	FinishReason string
}

// Delta is the content added by a chunk.
type Delta struct {
	Role    Role
	Content string
}
