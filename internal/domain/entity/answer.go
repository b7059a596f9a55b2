package entity

// RetrievalResult 一次向量检索的结果
type RetrievalResult struct {
	Collection string          `json:"collection"`
	Question   string          `json:"question"`
	Passages   []ScoredPassage `json:"passages"`
}

// Empty 判断检索结果是否为空
func (r RetrievalResult) Empty() bool {
	return len(r.Passages) == 0
}

// Answer 基于检索上下文生成的回答
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
	// Grounded 为 false 表示上下文不足，回答是兜底文案而非模型输出
	Grounded bool `json:"grounded"`
}

// AudioArtifact 语音合成产物
type AudioArtifact struct {
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// SpokenAnswer 最终响应载荷：文字回答加可选的语音
// Audio 为 nil 表示语音合成失败或被跳过，文字部分仍然有效
type SpokenAnswer struct {
	Answer
	Audio *AudioArtifact `json:"audio,omitempty"`
}
