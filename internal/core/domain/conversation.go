package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type AnswerRequest struct {
	Question  string `json:"question"`
	Label     string `json:"label,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Route names the branch of the answer state machine that produced a reply.
type Route string

const (
	RouteReset      Route = "reset"
	RouteMeta       Route = "meta"
	RouteLookup     Route = "lookup"
	RouteRetrieval  Route = "retrieval"
	RouteWebLabel   Route = "web_label"
	RouteWebGeneral Route = "web_general"
)

type AnswerResult struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	Route     Route  `json:"-"`
}

type SessionStats struct {
	ActiveSessions        int `json:"active_sessions"`
	SessionTimeoutMinutes int `json:"session_timeout_minutes"`
}

// GenerationRequest is the contract of the external generation service.
type GenerationRequest struct {
	Query             string
	SystemInstruction string
	History           []Turn
	AllowWebSearch    bool
	Temperature       float64
}

// MetadataRecord is one entry of the flat structured record store.
type MetadataRecord struct {
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields"`
}

const (
	FieldScientificName = "Tên khoa học"
	FieldVietnameseName = "Tên tiếng Việt"
)

func (r MetadataRecord) ScientificName() string {
	if v := r.Fields[FieldScientificName]; v != "" {
		return v
	}
	return r.Key
}

func (r MetadataRecord) VietnameseName() string {
	return r.Fields[FieldVietnameseName]
}
