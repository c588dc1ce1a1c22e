package report

import "CareerReport/internal/backend"

const (
	// Temperature is the sampling temperature for every report
	Temperature = 0.7

	// SystemPrompt frames the model as a career report writer
	SystemPrompt = "Tworzysz klarowne, praktyczne raporty rozwoju kariery po polsku."

	// Placeholder replaces absent completion content
	Placeholder = "(Brak treści)"

	promptTemplate = `Jesteś ekspertem kariery. Na podstawie odpowiedzi użytkownika wygeneruj ZWIĘZŁY raport po polsku.
Sekcje: Wstęp (2–3 zdania), Mocne strony (w punktach), Potencjalne blokady (w punktach),
Rekomendacje 30/60/90 dni (konkretne kroki), Krótka konkluzja.
Nie wymyślaj danych — opieraj się na odpowiedziach.

Odpowiedzi użytkownika (JSON):
`
)

// BuildPrompt renders the answers as two-space indented JSON inside the fixed instructions
func BuildPrompt(payload Payload) string {
	return promptTemplate + payload.Indent()
}

// Messages returns the system and user messages for a prompt
func Messages(prompt string) []backend.Message {
	return []backend.Message{
		{Role: backend.RoleSystem, Content: SystemPrompt},
		{Role: backend.RoleUser, Content: prompt},
	}
}
