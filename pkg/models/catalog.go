package models

const basePrompt = "You are Rapid Chat, a fast and friendly assistant. " +
	"Answer clearly, use Markdown for structure, and keep replies concise unless asked for detail."

const reasoningPrompt = basePrompt +
	" Think step by step inside <think></think> before giving the final answer."

const agentPrompt = basePrompt +
	" You can call tools for live data: weather, encyclopedia lookups, reading web pages, " +
	"arithmetic, running code, the current time in a timezone, and video transcripts. " +
	"Call a tool only when it is needed and cite what it returned."

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		{
			ID: "scout", Provider: "groq", VendorModel: "meta-llama/llama-4-scout-17b-16e-instruct",
			DisplayName: "Llama 4 Scout", Description: "Fast multimodal general model",
			Attachments: Images, ContextWindow: 131072, MaxOutputTokens: 8192,
			SystemPrompt: basePrompt,
		},
		{
			ID: "maverick", Provider: "groq", VendorModel: "meta-llama/llama-4-maverick-17b-128e-instruct",
			DisplayName: "Llama 4 Maverick", Description: "Larger multimodal Llama 4",
			Attachments: Images, ContextWindow: 131072, MaxOutputTokens: 8192,
			SystemPrompt: basePrompt,
		},
		{
			ID: "qwen", Provider: "groq", VendorModel: "qwen/qwen3-32b",
			DisplayName: "Qwen 3 32B", Description: "Reasoning model with visible thoughts",
			Reasoning: true, ContextWindow: 131072, MaxOutputTokens: 16384,
			SystemPrompt: reasoningPrompt,
		},
		{
			ID: "deepseek", Provider: "groq", VendorModel: "deepseek-r1-distill-llama-70b",
			DisplayName: "DeepSeek R1 Distill", Description: "Step-by-step reasoning",
			Reasoning: true, ContextWindow: 131072, MaxOutputTokens: 16384,
			SystemPrompt: reasoningPrompt,
		},
		{
			ID: "llama", Provider: "groq", VendorModel: "llama-3.3-70b-versatile",
			DisplayName: "Llama 3.3 70B", Description: "Versatile text model",
			ContextWindow: 131072, MaxOutputTokens: 8192,
			SystemPrompt: basePrompt,
		},
		{
			ID: "gemini", Provider: "google", VendorModel: "gemini-2.5-flash",
			DisplayName: "Gemini 2.5 Flash", Description: "Images, PDFs and audio",
			Attachments: join(Images, PDF, Audio), Reasoning: true, ThinkingBudget: 2048,
			ContextWindow: 1048576, MaxOutputTokens: 65536,
			SystemPrompt: basePrompt,
		},
		{
			ID: "gemini-pro", Provider: "google", VendorModel: "gemini-2.5-pro",
			DisplayName: "Gemini 2.5 Pro", Description: "Deep multimodal reasoning",
			Attachments: join(Images, PDF, Audio), Reasoning: true, ThinkingBudget: 8192,
			ContextWindow: 1048576, MaxOutputTokens: 65536,
			SystemPrompt: basePrompt,
		},
		{
			ID: "claude", Provider: "anthropic", VendorModel: "claude-sonnet-4-5",
			DisplayName: "Claude Sonnet 4.5", Description: "Careful writing, images and PDFs",
			Attachments: join(Images, PDF), ContextWindow: 200000, MaxOutputTokens: 16384,
			SystemPrompt: basePrompt,
		},
		{
			ID: "gpt", Provider: "openai", VendorModel: "gpt-4.1-mini",
			DisplayName: "GPT-4.1 mini", Description: "OpenAI general model",
			Attachments: join(Images, PDF), ContextWindow: 1047576, MaxOutputTokens: 32768,
			SystemPrompt: basePrompt,
		},
		{
			ID: "nova", Provider: "bedrock", VendorModel: "us.amazon.nova-pro-v1:0",
			DisplayName: "Amazon Nova Pro", Description: "Bedrock multimodal model",
			Attachments: join(Images, PDF), ContextWindow: 300000, MaxOutputTokens: 5120,
			SystemPrompt: basePrompt,
		},
		{
			ID: "agent", Provider: "groq", VendorModel: "llama-3.3-70b-versatile",
			DisplayName: "Agent", Description: "Tool-using assistant with live data",
			Tools: true, ContextWindow: 131072, MaxOutputTokens: 8192,
			SystemPrompt: agentPrompt,
		},
	}
}
