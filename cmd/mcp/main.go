package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// JSON-RPC structures
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MCP structures
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCPServer exposes the internal holiday API as MCP tools over stdio.
type MCPServer struct {
	apiURL string
	apiKey string
	owner  string
	client *http.Client
}

func NewMCPServer() *MCPServer {
	apiURL := os.Getenv("HOLIDAYBOT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	return &MCPServer{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: os.Getenv("HOLIDAYBOT_API_KEY"),
		owner:  os.Getenv("HOLIDAYBOT_USER_ID"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *MCPServer) Run(in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "Error reading: %v\n", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing JSON: %v\n", err)
			continue
		}

		// Notifications carry no id and get no reply.
		if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
			continue
		}

		response := s.handleRequest(req)
		responseBytes, _ := json.Marshal(response)
		fmt.Fprintln(out, string(responseBytes))
	}
}

func (s *MCPServer) handleRequest(req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized", "ping":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}
	case "tools/list":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: tools()}}
	case "tools/call":
		return s.handleToolsCall(req)
	default:
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "Method not found"},
		}
	}
}

func (s *MCPServer) handleInitialize(req JSONRPCRequest) JSONRPCResponse {
	result := InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
	}
	result.ServerInfo.Name = "holidaybot-mcp"
	result.ServerInfo.Version = "1.0.0"

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

var userIDProp = Property{Type: "string", Description: "LINE user id of the owner. Defaults to HOLIDAYBOT_USER_ID."}

func tools() []Tool {
	return []Tool{
		{
			Name:        "holiday_list",
			Description: "List holidays and class cancellations overlapping a date range.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_id": userIDProp,
					"from":    {Type: "string", Description: "Start date, YYYY-MM-DD"},
					"to":      {Type: "string", Description: "End date, YYYY-MM-DD"},
				},
				Required: []string{"from", "to"},
			},
		},
		{
			Name:        "holiday_create",
			Description: "Create a holiday or a class cancellation. A cancellation needs subject_id and may not repeat for the same subject and date.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_id":    userIDProp,
					"type":       {Type: "string", Description: "holiday or cancel", Enum: []string{"holiday", "cancel"}},
					"subject_id": {Type: "string", Description: "Subject code, required for cancel"},
					"start_at":   {Type: "string", Description: "Date or RFC3339 timestamp"},
					"end_at":     {Type: "string", Description: "Date or RFC3339 timestamp"},
					"title":      {Type: "string", Description: "Optional title"},
					"note":       {Type: "string", Description: "Optional note"},
				},
				Required: []string{"type", "start_at", "end_at"},
			},
		},
		{
			Name:        "holiday_delete",
			Description: "Delete a holiday or cancellation and all of its reminders.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_id": userIDProp,
					"id":      {Type: "number", Description: "Holiday id"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "holiday_set_reminders",
			Description: "Replace the pending reminders of a holiday. Each reminder is either a timestamp or days_before plus time (HH:MM).",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_id":     userIDProp,
					"holiday_id":  {Type: "number", Description: "Holiday id"},
					"days_before": {Type: "number", Description: "Days before the holiday"},
					"time":        {Type: "string", Description: "Time of day, HH:MM"},
					"remind_at":   {Type: "string", Description: "Absolute reminder time, overrides days_before"},
				},
				Required: []string{"holiday_id"},
			},
		},
		{
			Name:        "cancel_query",
			Description: "Find cancelled classes, optionally for one subject.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_id":       userIDProp,
					"subject_query": {Type: "string", Description: "Subject code"},
					"range":         {Type: "string", Description: "Window", Enum: []string{"upcoming", "next_week", "all"}},
					"date":          {Type: "string", Description: "Exact date, YYYY-MM-DD"},
				},
			},
		},
		{
			Name:        "subjects_list",
			Description: "List the owner's timetable subjects.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"user_id": userIDProp},
			},
		},
	}
}

func (s *MCPServer) handleToolsCall(req JSONRPCRequest) JSONRPCResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32602, Message: "Invalid params"},
		}
	}
	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}

	var result string
	var isError bool

	owner := s.ownerFrom(args)
	if owner == "" {
		result, isError = "user_id is required (or set HOLIDAYBOT_USER_ID)", true
	} else {
		args["user_id"] = owner
		switch params.Name {
		case "holiday_list":
			q := url.Values{"user_id": {owner}, "from": {str(args["from"])}, "to": {str(args["to"])}}
			result, isError = s.apiGet("/holidays/list?" + q.Encode())
		case "holiday_create":
			result, isError = s.apiPost("/holidays", args)
		case "holiday_delete":
			result, isError = s.apiPost("/holidays/delete", map[string]any{"user_id": owner, "id": args["id"]})
		case "holiday_set_reminders":
			result, isError = s.apiPost("/holidays/reminders/set", map[string]any{
				"user_id":    owner,
				"holiday_id": args["holiday_id"],
				"reminders":  reminderArgs(args),
			})
		case "cancel_query":
			result, isError = s.apiPost("/cancel/query", args)
		case "subjects_list":
			result, isError = s.apiGet("/subjects?" + url.Values{"user_id": {owner}}.Encode())
		default:
			result = "Unknown tool: " + params.Name
			isError = true
		}
	}

	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func (s *MCPServer) ownerFrom(args map[string]any) string {
	if v := strings.TrimSpace(str(args["user_id"])); v != "" {
		return v
	}
	return s.owner
}

// reminderArgs turns the flat tool arguments into a reminders array. No
// reminder fields means an empty list, which clears pending reminders.
func reminderArgs(args map[string]any) []any {
	if at := strings.TrimSpace(str(args["remind_at"])); at != "" {
		return []any{at}
	}
	if args["days_before"] != nil && str(args["time"]) != "" {
		return []any{map[string]any{"days_before": args["days_before"], "time": args["time"]}}
	}
	return []any{}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func (s *MCPServer) apiGet(path string) (string, bool) {
	return s.apiRequest(http.MethodGet, path, nil)
}

func (s *MCPServer) apiPost(path string, body any) (string, bool) {
	return s.apiRequest(http.MethodPost, path, body)
}

func (s *MCPServer) apiRequest(method, path string, body any) (string, bool) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.apiURL+path, reqBody)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var apiResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return string(respBody), resp.StatusCode >= 400
	}
	if !apiResp.OK {
		return fmt.Sprintf("API Error (%d): %s", resp.StatusCode, apiResp.Error), true
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		return string(respBody), false
	}
	return pretty.String(), false
}

func main() {
	NewMCPServer().Run(os.Stdin, os.Stdout)
}
