// Package gemini implements a generation backend on Google's Gemini API
// using the google.golang.org/genai client.
package gemini
