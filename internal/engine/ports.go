package engine

// Имена входных портов.
const (
	// DefaultPort — порт для рёбер без targetHandle.
	DefaultPort = "input"

	PortText         = "text"
	PortSystemPrompt = "systemPrompt"
	PortUserMessage  = "userMessage"
	PortImages       = "images"
	PortImage        = "image"
	PortVideo        = "video"
)

// portAliases — написания портов, которые сохранял старый канвас.
var portAliases = map[string]string{
	"system_prompt": PortSystemPrompt,
	"user_message":  PortUserMessage,
	"prompt":        PortUserMessage,
}

// CanonicalPort приводит имя порта ребра к каноническому.
// Пустой порт становится DefaultPort.
func CanonicalPort(port string) string {
	if port == "" {
		return DefaultPort
	}
	if canon, ok := portAliases[port]; ok {
		return canon
	}
	return port
}

// IsMultiPort возвращает true для портов, принимающих несколько рёбер.
func IsMultiPort(port string) bool {
	return CanonicalPort(port) == PortImages
}
