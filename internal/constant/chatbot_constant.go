package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"

	DefaultSystemPrompt = "You are the Physical AI and Humanoid Robotics Expert. Answer strictly using provided book context or highlighted text. Cite chapters."

	// PromptFramingReserve is the number of characters reserved for the fixed
	// tags wrapped around the system prompt, selection and question.
	PromptFramingReserve = 512

	SelectionSavedStatus = "Selection saved successfully"
	LivenessStatus       = "Chatbot API is live"

	// Embedding task types understood by the providers that support them.
	EmbeddingTaskRetrievalQuery    = "RETRIEVAL_QUERY"
	EmbeddingTaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// Stable error codes returned to API clients.
const (
	ErrorCodeInvalidInput       = "INVALID_INPUT"
	ErrorCodeUpstreamGeneration = "UPSTREAM_GENERATION_ERROR"
	ErrorCodePersistence        = "PERSISTENCE_ERROR"
	ErrorCodeRequestCancelled   = "REQUEST_CANCELLED"
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeInternal           = "INTERNAL_ERROR"
)

// Turn outcomes reported to clients and metrics.
const (
	TurnOutcomeSuccess  = "success"
	TurnOutcomeDegraded = "degraded"
	TurnOutcomeFailed   = "failed"
)
