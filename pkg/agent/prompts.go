// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"fmt"
	"strings"
)

// NoAnswer is appended when the rewrite budget runs out.
const NoAnswer = "I could not find an answer to your question in the available sources."

// SystemPrompt returns the system message seeded on the first turn of a
// thread.
func SystemPrompt(collection string) string {
	return fmt.Sprintf("You are an assistant helping with documentation. "+
		"Use the '%s' collection to query relevant information from the vector store "+
		"ONLY IF you deem that it is required. If you query from the vector store, "+
		"please provide the source of the information that can be found in the metadata.",
		collection)
}

func gradePrompt(question, context string) string {
	var b strings.Builder
	b.WriteString("You are a grader assessing relevance of a retrieved document to a user question.\n")
	b.WriteString("Here is the retrieved document:\n\n")
	b.WriteString(context)
	b.WriteString("\n\nHere is the user question: ")
	b.WriteString(question)
	b.WriteString("\nIf the document contains keyword(s) or semantic meaning related to the user question, grade it as relevant.\n")
	b.WriteString(`Give a binary score 'yes' or 'no' to indicate whether the document is relevant to the question. `)
	b.WriteString(`Respond with a JSON object of the form {"binary_score": "yes"} or {"binary_score": "no"}.`)
	return b.String()
}

func rewritePrompt(question string) string {
	return " \n" +
		"Look at the input and try to reason about the underlying semantic intent / meaning. \n" +
		"Here is the initial question:\n" +
		"\n ------- \n" +
		question +
		"\n ------- \n" +
		"Formulate an improved question: "
}

func generatePrompt(question, context string) string {
	return "You are an assistant for question-answering tasks. " +
		"Use the following pieces of retrieved context to answer the question. " +
		"If you don't know the answer, just say that you don't know.\n" +
		"Question: " + question + "\n" +
		"Context: " + context + "\n" +
		"Answer:"
}
