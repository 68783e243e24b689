package transcription

// Ensure the OpenAI client satisfies the uploader contract
var _ Uploader = (*OpenAIClient)(nil)
