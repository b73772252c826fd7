// Package openai implements a generation backend on the OpenAI chat
// completions API. The same client serves Azure OpenAI deployments, which
// differ only in URL layout and authentication header.
package openai
