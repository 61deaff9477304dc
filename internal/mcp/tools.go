// File: internal/mcp/tools.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/service"
)

// toolHandler runs a tool. A returned error is shown to the caller as a failed
// tool result.
type toolHandler func(ctx context.Context, args json.RawMessage) (string, error)

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var args T
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func (s *Server) addTool(name, description string, schema map[string]any, h toolHandler) {
	s.tools = append(s.tools, Tool{Name: name, Description: description, InputSchema: schema})
	s.toolIndex[name] = h
}

func (s *Server) registerTools() {
	s.toolIndex = make(map[string]toolHandler)

	s.addTool("create_session",
		"Create a session tracking one automated exchange. Omitted fields use the stored defaults.",
		objectSchema([]string{"wallet_address"}, map[string]any{
			"wallet_address": prop("string", "Wallet address that receives the crypto"),
			"amount":         prop("number", "Amount in USD to exchange"),
			"from_currency":  prop("string", "Source currency ticker, e.g. usd-usd"),
			"to_currency":    prop("string", "Target currency ticker, e.g. pol-matic"),
		}), s.createSession)

	s.addTool("setup_wallet",
		"Register a wallet address with the exchange site (one-time operation) and save the browser profile.",
		objectSchema([]string{"wallet_address"}, map[string]any{
			"wallet_address": prop("string", "Wallet address to register"),
			"session_id":     prop("string", "Optional session to associate with the setup run"),
		}), s.setupWallet)

	s.addTool("execute_swap",
		"Start the automated exchange for a created session.",
		objectSchema([]string{"session_id"}, map[string]any{
			"session_id": prop("string", "Session id returned by create_session"),
		}), s.executeSwap)

	s.addTool("check_status",
		"Check the status of a run and advance the associated session.",
		objectSchema([]string{"run_id"}, map[string]any{
			"run_id":     prop("string", "Run id from setup_wallet or execute_swap"),
			"session_id": prop("string", "Optional session to update"),
		}), s.checkStatus)

	s.addTool("get_session_info",
		"Get the full record of a session.",
		objectSchema([]string{"session_id"}, map[string]any{
			"session_id": prop("string", "Session id to query"),
		}), s.getSessionInfo)

	s.addTool("list_sessions", "List all sessions with masked wallet addresses.",
		objectSchema(nil, map[string]any{}), s.listSessions)

	s.addTool("save_profile",
		"Save a wallet address under a name for reuse.",
		objectSchema([]string{"name", "wallet_address"}, map[string]any{
			"name":           prop("string", "Profile name"),
			"wallet_address": prop("string", "Wallet address"),
		}), s.saveProfile)

	s.addTool("get_profile", "Get the wallet address saved under a profile name.",
		objectSchema([]string{"name"}, map[string]any{
			"name": prop("string", "Profile name"),
		}), s.getProfile)

	s.addTool("list_profiles", "List saved wallet profiles with masked addresses.",
		objectSchema(nil, map[string]any{}), s.listProfiles)

	s.addTool("delete_profile", "Delete a saved wallet profile.",
		objectSchema([]string{"name"}, map[string]any{
			"name": prop("string", "Profile name"),
		}), s.deleteProfile)

	s.addTool("set_defaults", "Update the default request values. Omitted fields keep their value.",
		objectSchema(nil, map[string]any{
			"default_wallet":        prop("string", "Default wallet address"),
			"default_amount":        prop("number", "Default amount in USD"),
			"default_from_currency": prop("string", "Default source currency"),
			"default_to_currency":   prop("string", "Default target currency"),
		}), s.setDefaults)

	s.addTool("get_defaults", "Get the current default request values.",
		objectSchema(nil, map[string]any{}), s.getDefaults)
}

// notFound renders a missing session or profile the way callers expect to read it.
func notFound(kind, id string, err error) error {
	if service.IsNotFound(err) {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return err
}

func (s *Server) createSession(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		WalletAddress string  `json:"wallet_address"`
		Amount        float64 `json:"amount"`
		FromCurrency  string  `json:"from_currency"`
		ToCurrency    string  `json:"to_currency"`
	}](raw)
	if err != nil {
		return "", err
	}
	sess, err := s.svc.CreateSession(schemas.ExchangeRequest{
		WalletAddress: strings.TrimSpace(args.WalletAddress),
		Amount:        args.Amount,
		FromCurrency:  args.FromCurrency,
		ToCurrency:    args.ToCurrency,
	})
	if err != nil {
		return "", err
	}
	return "Session created: " + sess.ID, nil
}

func (s *Server) setupWallet(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		WalletAddress string `json:"wallet_address"`
		SessionID     string `json:"session_id"`
	}](raw)
	if err != nil {
		return "", err
	}
	runID, err := s.svc.SetupWallet(ctx, args.WalletAddress, args.SessionID)
	if err != nil {
		return "", capitalize(err)
	}
	return "Setup started: " + runID, nil
}

func (s *Server) executeSwap(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		SessionID string `json:"session_id"`
	}](raw)
	if err != nil {
		return "", err
	}
	runID, err := s.svc.ExecuteSwap(ctx, args.SessionID)
	if err != nil {
		return "", capitalize(notFound("Session", args.SessionID, err))
	}
	return "Swap started: " + runID, nil
}

func (s *Server) checkStatus(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		RunID     string `json:"run_id"`
		SessionID string `json:"session_id"`
	}](raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(args.RunID) == "" {
		return "", errors.New("run_id is required")
	}
	report, err := s.svc.CheckStatus(ctx, args.RunID, args.SessionID)
	if err != nil {
		return "", capitalize(notFound("Session", args.SessionID, err))
	}
	return toJSON(report)
}

func (s *Server) getSessionInfo(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		SessionID string `json:"session_id"`
	}](raw)
	if err != nil {
		return "", err
	}
	sess, err := s.svc.Session(args.SessionID)
	if err != nil {
		return "", notFound("Session", args.SessionID, err)
	}
	return toJSON(sess)
}

// sessionSummary is the list view of a session.
type sessionSummary struct {
	SessionID     string                `json:"session_id"`
	WalletAddress string                `json:"wallet_address"`
	Amount        float64               `json:"amount"`
	Status        schemas.SessionStatus `json:"status"`
	CreatedAt     time.Time             `json:"created_at"`
	ExchangeID    string                `json:"exchange_id,omitempty"`
}

func summarize(sessions []schemas.Session) []sessionSummary {
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionSummary{
			SessionID:     sess.ID,
			WalletAddress: schemas.MaskWallet(sess.Request.WalletAddress),
			Amount:        sess.Request.Amount,
			Status:        sess.Status,
			CreatedAt:     sess.CreatedAt,
			ExchangeID:    sess.ExchangeID,
		})
	}
	return out
}

func (s *Server) listSessions(context.Context, json.RawMessage) (string, error) {
	return toJSON(summarize(s.svc.Sessions()))
}

func (s *Server) saveProfile(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		Name          string `json:"name"`
		WalletAddress string `json:"wallet_address"`
	}](raw)
	if err != nil {
		return "", err
	}
	if err := s.svc.SaveProfile(args.Name, args.WalletAddress); err != nil {
		return "", err
	}
	return fmt.Sprintf("Profile '%s' saved successfully", strings.TrimSpace(args.Name)), nil
}

func (s *Server) getProfile(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		Name string `json:"name"`
	}](raw)
	if err != nil {
		return "", err
	}
	wallet, err := s.svc.Profile(args.Name)
	if err != nil {
		return "", notFound("Profile", "'"+args.Name+"'", err)
	}
	return wallet, nil
}

func maskedProfiles(s *service.Service) []map[string]string {
	profiles := s.Profiles()
	out := make([]map[string]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, map[string]string{"name": p.Name, "wallet_address": schemas.MaskWallet(p.WalletAddress)})
	}
	return out
}

func (s *Server) listProfiles(context.Context, json.RawMessage) (string, error) {
	return toJSON(maskedProfiles(s.svc))
}

func (s *Server) deleteProfile(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[struct {
		Name string `json:"name"`
	}](raw)
	if err != nil {
		return "", err
	}
	if err := s.svc.DeleteProfile(args.Name); err != nil {
		return "", notFound("Profile", "'"+args.Name+"'", err)
	}
	return fmt.Sprintf("Profile '%s' deleted", args.Name), nil
}

func (s *Server) setDefaults(_ context.Context, raw json.RawMessage) (string, error) {
	patch, err := decodeArgs[schemas.Defaults](raw)
	if err != nil {
		return "", err
	}
	if patch.Amount < 0 {
		return "", errors.New("default_amount must be positive")
	}
	if _, err := s.svc.SetDefaults(patch); err != nil {
		return "", err
	}
	s.logger.Info("Default configuration updated")
	return "Default configuration updated successfully", nil
}

func (s *Server) getDefaults(context.Context, json.RawMessage) (string, error) {
	return toJSON(s.svc.Defaults())
}

// capitalize upper-cases the first letter of an error message for display.
func capitalize(err error) error {
	msg := err.Error()
	if msg == "" {
		return err
	}
	return errors.New(strings.ToUpper(msg[:1]) + msg[1:])
}
