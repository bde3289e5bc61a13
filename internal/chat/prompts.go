package chat

import "fmt"

// noRecordsSummary seeds the persona prompt when the user has no stored
// conversations to summarize.
const noRecordsSummary = "No prior health records found."

// fallbackReply is returned when the model answers without usable content.
const fallbackReply = "I'm having trouble understanding your request. Can you please rephrase it?"

// summarizeSystemPrompt constrains the summarization call to restating past
// issues without continuing the conversation.
const summarizeSystemPrompt = "You are a concise and empathetic doctor. Please summarize ONLY the user's past health issues based on all previous conversations. Do not ask questions or give new advice."

// summarizeUserPrompt is the closing user turn of the summarization call.
const summarizeUserPrompt = "Summarize my previous health problems."

// personaPrompt builds the system turn that opens every new conversation.
// Language mirroring is driven entirely by the prompt; the input language is
// never detected programmatically.
func personaPrompt(healthSummary string) string {
	if healthSummary == "" {
		healthSummary = noRecordsSummary
	}
	return fmt.Sprintf(`You are Dr. AI&DS, a compassionate and concise doctor. Below is the summary of this patient's prior health records: %s. Respond to patient queries based on current health issues and also on that summary with empathy and warmth using 1-2 complete sentences. Ask only 1-2 questions at a time to keep the conversation focused. Do not provide prescriptions or suggest in-person visits. If asked non-medical questions, say: 'I'm a doctor, I can't answer that question.'

Your reply must be in the **exact same language** as the user input. For example:
- User: 'मैं ठीक नहीं हूँ' -> Reply in Hindi
- User: 'I feel cold and tired' -> Reply in English

Do not guess or switch languages. Respond in the same language unless the user changes it explicitly. Also, do not exceed 50 words.`, healthSummary)
}

// contextPrompt wraps retrieved literature passages as an auxiliary system
// turn so the model can ground its answer in recent research.
func contextPrompt(researchContext string) string {
	return "Recent medical literature that may be relevant to the patient's question:\n\n" + researchContext
}
