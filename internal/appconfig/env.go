package appconfig

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LOREMASTER_RAG_CHATMODEL.
const EnvPrefix = "LOREMASTER"

var settingKeys = []string{
	"dataPath", "embeddingsPath", "logFile", "debug",
	"api.baseURL", "api.apiKey", "api.apiKeyEnv", "api.testModel", "api.embeddingTimeout", "api.chatTimeout",
	"rag.embeddingModel", "rag.rerankModel", "rag.chatModel",
	"rag.topKRetrieval", "rag.topKRerank", "rag.maxCandidates",
	"rag.temperature", "rag.maxTokens", "rag.historyLimit",
	"rag.batchSize", "rag.batchDelayMs", "rag.categoryFilter",
	"stream.timeout", "stream.connectTimeout", "stream.readTimeout",
}

// BindEnv lets LOREMASTER_<SECTION>_<KEY> variables override file values in v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range settingKeys {
		_ = v.BindEnv(key)
	}
}
