package models

// ModelType identifies what kind of inference a model serves.
type ModelType string

const (
	ModelTypeTextGeneration     ModelType = "text-generation"
	ModelTypeTextEmbeddings     ModelType = "text-embeddings-inference"
	ModelTypeTextClassification ModelType = "text-classification"
	ModelTypeImageTextToText    ModelType = "image-text-to-text"
	ModelTypeSpeechRecognition  ModelType = "automatic-speech-recognition"
)

// Endpoint names used to match model types against the HTTP surface.
const (
	EndpointChatCompletions = "chat_completions"
	EndpointEmbeddings      = "embeddings"
	EndpointModels          = "models"
	EndpointOCR             = "ocr"
	EndpointRerank          = "rerank"
)

// ModelTypesForEndpoint lists which model types may serve each endpoint.
var ModelTypesForEndpoint = map[string][]ModelType{
	EndpointChatCompletions: {ModelTypeTextGeneration, ModelTypeImageTextToText},
	EndpointEmbeddings:      {ModelTypeTextEmbeddings},
	EndpointOCR:             {ModelTypeImageTextToText},
	EndpointRerank:          {ModelTypeTextClassification},
}

// ProviderTypesForModelType lists which provider backends can serve each model type.
var ProviderTypesForModelType = map[ModelType][]ProviderType{
	ModelTypeTextGeneration:     {ProviderTypeAlbert, ProviderTypeOpenAI, ProviderTypeVLLM},
	ModelTypeTextEmbeddings:     {ProviderTypeAlbert, ProviderTypeOpenAI, ProviderTypeTEI, ProviderTypeVLLM},
	ModelTypeTextClassification: {ProviderTypeAlbert, ProviderTypeTEI},
	ModelTypeImageTextToText:    {ProviderTypeAlbert, ProviderTypeOpenAI, ProviderTypeVLLM},
	ModelTypeSpeechRecognition:  {ProviderTypeAlbert, ProviderTypeOpenAI, ProviderTypeVLLM},
}

// EndpointSupportsModelType reports whether a model of the given type may serve the endpoint.
func EndpointSupportsModelType(endpoint string, t ModelType) bool {
	for _, allowed := range ModelTypesForEndpoint[endpoint] {
		if allowed == t {
			return true
		}
	}
	return false
}

// ModelCosts is the price per million tokens charged against user budgets.
type ModelCosts struct {
	PromptTokens     float64 `json:"prompt_tokens"`
	CompletionTokens float64 `json:"completion_tokens"`
}

// Model is the OpenAI-compatible model card returned by /v1/models.
type Model struct {
	ID               string     `json:"id"`
	Object           string     `json:"object"`
	Type             ModelType  `json:"type"`
	OwnedBy          string     `json:"owned_by"`
	Aliases          []string   `json:"aliases"`
	Created          int64      `json:"created"`
	MaxContextLength *int       `json:"max_context_length"`
	Costs            ModelCosts `json:"costs"`
}

// ModelList is the OpenAI-compatible list envelope for /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
