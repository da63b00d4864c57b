package rag

import (
	"fmt"
	"strings"

	"github.com/mwiater/loremaster/internal/apiclient"
	"github.com/mwiater/loremaster/internal/lore"
	"github.com/mwiater/loremaster/internal/util"
)

const rerankContentLimit = 500

const knowledgePrompt = `你是一个专业的小说创作助手，基于用户提供的知识库内容来回答问题。

知识库内容：
%s

请根据以上知识库内容回答用户的问题。要求：
1. 优先使用知识库中的信息
2. 如果知识库中没有直接相关的信息，可以基于你的知识进行合理推测和建议
3. 回答要准确、详细且有条理
4. 可以结合多个条目的信息进行综合回答
5. 保持专业和友好的语调`

const generalPrompt = `你是一个专业的小说创作助手。虽然在当前知识库中没有找到直接相关的信息，但你可以基于你的专业知识来帮助用户。

请回答用户的问题，要求：
1. 基于你的专业知识提供有用的建议和信息
2. 如果是关于小说创作的问题，提供具体的写作技巧和建议
3. 回答要准确、详细且有条理
4. 可以提供相关的例子和参考
5. 保持专业和友好的语调
6. 如果合适，可以建议用户在知识库中添加相关内容以便将来参考`

// BuildPrompt assembles the chat messages: a system prompt carrying the
// numbered knowledge blocks (or the general-knowledge prompt when entries is
// empty), the last historyLimit history messages, then the query.
func BuildPrompt(query string, entries []lore.Entry, history []apiclient.Message, historyLimit int) []apiclient.Message {
	system := generalPrompt
	if len(entries) > 0 {
		system = fmt.Sprintf(knowledgePrompt, FormatKnowledge(entries))
	}

	messages := make([]apiclient.Message, 0, len(history)+2)
	messages = append(messages, apiclient.Message{Role: "system", Content: system})
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	messages = append(messages, history...)
	messages = append(messages, apiclient.Message{Role: "user", Content: query})
	return messages
}

// FormatKnowledge renders entries as 【条目N：title】 blocks separated by blank lines.
func FormatKnowledge(entries []lore.Entry) string {
	blocks := make([]string, 0, len(entries))
	for i, entry := range entries {
		block := fmt.Sprintf("【条目%d：%s】\n%s", i+1, entry.Title, entry.Content)
		if len(entry.Tags) > 0 {
			block += "\n标签：" + strings.Join(entry.Tags, ", ")
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

// rerankDocument is the text the rerank model scores for an entry.
func rerankDocument(entry lore.Entry) string {
	parts := []string{entry.Title}
	if entry.Content != "" {
		parts = append(parts, util.TruncateRunes(entry.Content, rerankContentLimit))
	}
	if len(entry.Tags) > 0 {
		parts = append(parts, "标签: "+strings.Join(entry.Tags, ", "))
	}
	return strings.Join(parts, " ")
}
