// File: internal/mcp/resources.go
package mcp

import (
	"strings"
)

const (
	mimeJSON     = "application/json"
	mimeMarkdown = "text/markdown"

	sessionPrefix = "swap://session/"
	profilePrefix = "swap://profile/"
)

var resources = []Resource{
	{URI: "swap://sessions", Name: "sessions", Description: "All sessions", MimeType: mimeJSON},
	{URI: "swap://profiles", Name: "profiles", Description: "All saved wallet profiles", MimeType: mimeJSON},
	{URI: "swap://config", Name: "config", Description: "Current defaults and totals", MimeType: mimeJSON},
	{URI: "swap://docs/setup", Name: "setup guide", Description: "How to set up a wallet and run exchanges", MimeType: mimeMarkdown},
	{URI: "swap://docs/api", Name: "api reference", Description: "Tools and resources of this server", MimeType: mimeMarkdown},
}

var resourceTemplates = []ResourceTemplate{
	{URITemplate: sessionPrefix + "{id}", Name: "session", Description: "A single session", MimeType: mimeJSON},
	{URITemplate: profilePrefix + "{name}", Name: "profile", Description: "A single wallet profile", MimeType: mimeJSON},
}

func (s *Server) readResource(uri string) (ResourceContents, *RPCError) {
	text, mime, err := s.resourceText(uri)
	if err != nil {
		return ResourceContents{}, err
	}
	return ResourceContents{URI: uri, MimeType: mime, Text: text}, nil
}

func (s *Server) resourceText(uri string) (string, string, *RPCError) {
	encode := func(v any) (string, string, *RPCError) {
		text, err := toJSON(v)
		if err != nil {
			return "", "", rpcErrorf(InternalError, "%v", err)
		}
		return text, mimeJSON, nil
	}

	switch {
	case uri == "swap://sessions":
		return encode(s.svc.Sessions())
	case uri == "swap://profiles":
		return encode(s.svc.Profiles())
	case uri == "swap://config":
		sessions, profiles := s.svc.Counts()
		d := s.svc.Defaults()
		return encode(map[string]any{
			"default_wallet":        d.WalletAddress,
			"default_amount":        d.Amount,
			"default_from_currency": d.FromCurrency,
			"default_to_currency":   d.ToCurrency,
			"total_sessions":        sessions,
			"total_profiles":        profiles,
		})
	case uri == "swap://docs/setup":
		return SetupGuide, mimeMarkdown, nil
	case uri == "swap://docs/api":
		return APIReference, mimeMarkdown, nil
	case strings.HasPrefix(uri, sessionPrefix):
		id := strings.TrimPrefix(uri, sessionPrefix)
		sess, err := s.svc.Session(id)
		if err != nil {
			return encode(map[string]string{"error": "Session " + id + " not found"})
		}
		return encode(sess)
	case strings.HasPrefix(uri, profilePrefix):
		name := strings.TrimPrefix(uri, profilePrefix)
		wallet, err := s.svc.Profile(name)
		if err != nil {
			return encode(map[string]string{"error": "Profile " + name + " not found"})
		}
		return encode(map[string]string{"name": name, "wallet_address": wallet})
	default:
		return "", "", rpcErrorf(InvalidParams, "resource not found: %s", uri)
	}
}

// SetupGuide is served as swap://docs/setup and printed by "swapflow docs".
const SetupGuide = "# Exchange Automation Setup Guide\n\n" +
	"## One-time setup\n\n" +
	"Before creating exchanges, register your wallet address with the exchange site:\n\n" +
	"1. **Setup mode**: add the wallet to the site's address book\n" +
	"   ```\n   Tool: setup_wallet\n   Args: wallet_address=\"YOUR_WALLET_ADDRESS\"\n   ```\n" +
	"2. **Verification**: wait for the setup run to finish\n" +
	"   ```\n   Tool: check_status\n   Args: run_id=\"SETUP_RUN_ID\"\n   ```\n\n" +
	"## Profile management\n\nSave frequently used wallets:\n\n" +
	"```\nTool: save_profile\nArgs: name=\"my_wallet\", wallet_address=\"YOUR_WALLET_ADDRESS\"\n```\n\n" +
	"## Session management\n\nCreate sessions to track exchanges:\n\n" +
	"```\nTool: create_session\nArgs: wallet_address=\"WALLET\", amount=50.0\n```\n\n" +
	"## Exchange execution\n\n" +
	"```\nTool: execute_swap\nArgs: session_id=\"SESSION_ID\"\n```\n\n" +
	"## Status monitoring\n\n" +
	"```\nTool: check_status\nArgs: run_id=\"RUN_ID\", session_id=\"SESSION_ID\"\n```\n"

// APIReference is served as swap://docs/api.
const APIReference = "# Exchange Automation MCP Reference\n\n" +
	"## Tools\n\n" +
	"### Sessions\n" +
	"- `create_session`: create a new exchange session\n" +
	"- `get_session_info`: get session details\n" +
	"- `list_sessions`: list all sessions\n\n" +
	"### Exchange operations\n" +
	"- `setup_wallet`: one-time wallet setup\n" +
	"- `execute_swap`: run the automated exchange\n" +
	"- `check_status`: check run status\n\n" +
	"### Profiles\n" +
	"- `save_profile`: save a wallet profile\n" +
	"- `get_profile`: get a saved profile\n" +
	"- `list_profiles`: list all profiles\n" +
	"- `delete_profile`: delete a profile\n\n" +
	"### Configuration\n" +
	"- `set_defaults`: set default values\n" +
	"- `get_defaults`: get current defaults\n\n" +
	"## Resources\n\n" +
	"- `swap://sessions`: all sessions\n" +
	"- `swap://session/{id}`: one session\n" +
	"- `swap://profiles`: all profiles\n" +
	"- `swap://profile/{name}`: one profile\n" +
	"- `swap://config`: current configuration\n" +
	"- `swap://docs/setup`: setup guide\n" +
	"- `swap://docs/api`: this document\n\n" +
	"## Workflow\n\n" +
	"1. Set up the wallet (once)\n2. Create a session\n3. Execute the swap\n4. Monitor status\n5. Read the result\n"

// -- Prompts --

type promptDef struct {
	Prompt
	text string
}

var prompts = []promptDef{
	{
		Prompt: Prompt{Name: "setup_new_wallet", Description: "Walk through registering a new wallet"},
		text: "I'll help you set up a new wallet address for exchange automation.\n\n" +
			"First, I need your wallet address. Please provide:\n" +
			"- Your wallet address (starts with 0x)\n" +
			"- Optionally, a profile name to save it for future use\n\n" +
			"Then I'll:\n" +
			"1. Run setup mode to add your wallet to the exchange site\n" +
			"2. Save your wallet profile for easy reuse\n" +
			"3. Verify the setup was successful\n\n" +
			"Please provide your wallet address to get started.",
	},
	{
		Prompt: Prompt{Name: "create_exchange", Description: "Create and run a new exchange"},
		text: "I'll help you create a cryptocurrency exchange.\n\n" +
			"Please provide:\n" +
			"- Your wallet address (or profile name if saved)\n" +
			"- Amount in USD to exchange\n" +
			"- Source and target currencies (defaults: USD to POL-MATIC)\n\n" +
			"I'll then:\n" +
			"1. Create a session for tracking\n" +
			"2. Execute the automated exchange\n" +
			"3. Monitor the progress\n" +
			"4. Return the exchange details\n\n" +
			"What exchange would you like to create?",
	},
	{
		Prompt: Prompt{Name: "check_session_status", Description: "Check on a session or run"},
		text: "I'll help you check the status of your exchange operations.\n\n" +
			"Please provide:\n" +
			"- Your session id (if checking a specific session)\n" +
			"- Or a run id (if checking a specific run)\n\n" +
			"I'll report the current progress, any errors, and the final exchange details once completed.\n\n" +
			"What would you like to check?",
	},
}

func promptList() []Prompt {
	out := make([]Prompt, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, p.Prompt)
	}
	return out
}

func getPrompt(name string) (GetPromptResult, *RPCError) {
	for _, p := range prompts {
		if p.Name == name {
			return GetPromptResult{
				Description: p.Description,
				Messages:    []PromptMessage{{Role: "user", Content: Content{Type: "text", Text: p.text}}},
			}, nil
		}
	}
	return GetPromptResult{}, rpcErrorf(InvalidParams, "unknown prompt: %s", name)
}
