package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/IC-FOODS/pafh-ontology/internal/application"
	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

type sourceMutationResult struct {
	Source  application.SourceSummary `json:"source"`
	Runtime domain.RuntimeOutcome     `json:"runtime"`
}

func doLogin(ctx context.Context, cfg cliConfig, username, password, tokenName string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.login", map[string]any{
			"username":   username,
			"password":   password,
			"token_name": tokenName,
		}, out)
	}
	client := newAPIClient(cfg.Server, "")
	return client.request(ctx, http.MethodPost, "/api/auth/login", map[string]any{
		"username":   username,
		"password":   password,
		"token_name": tokenName,
	}, out)
}

func doWhoAmI(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.whoami", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/auth/whoami", nil, out)
}

func doCapabilities(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "capabilities", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/capabilities", nil, out)
}

func doSourcesList(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "sources.list", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/data-sources", nil, out)
}

func doSourceCreateVirtualRDF(ctx context.Context, cfg cliConfig, in application.VirtualRDFSourceInput, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "sources.create_virtual_rdf", map[string]any{"token": cfg.Token, "input": in}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/data-sources/virtual-rdf", in, out)
}

func doSourceConfigure(ctx context.Context, cfg cliConfig, name string, in application.SourceConfigUpdate, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "sources.configure", map[string]any{"token": cfg.Token, "name": name, "input": in}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/data-sources/"+url.PathEscape(name)+"/config", in, out)
}

func doSearch(ctx context.Context, cfg cliConfig, query, sources string, limit int, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "search", map[string]any{"token": cfg.Token, "query": query, "sources": splitCSV(sources), "limit": limit}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	params := url.Values{}
	params.Set("query", query)
	if sources != "" {
		params.Set("sources", sources)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	return client.request(ctx, http.MethodGet, "/api/search?"+params.Encode(), nil, out)
}

func doQuery(ctx context.Context, cfg cliConfig, sourceID uint, query, queryType string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "query.dispatch", map[string]any{"token": cfg.Token, "source_id": sourceID, "query": query, "query_type": queryType}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/query", map[string]any{"source_id": sourceID, "query": query, "query_type": queryType}, out)
}

func doWriteBackCreate(ctx context.Context, cfg cliConfig, in application.WriteBackInput, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "writeback.create", map[string]any{"token": cfg.Token, "input": in}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/write-back", in, out)
}

func doWriteBackList(ctx context.Context, cfg cliConfig, limit int, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "writeback.list", map[string]any{"token": cfg.Token, "limit": limit}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, fmt.Sprintf("/api/write-back?limit=%d", limit), nil, out)
}

func doWriteBackGet(ctx context.Context, cfg cliConfig, id uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "writeback.get", map[string]any{"token": cfg.Token, "id": id}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, fmt.Sprintf("/api/write-back/%d", id), nil, out)
}

func doWriteBackReview(ctx context.Context, cfg cliConfig, id uint, action, reason string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "writeback.review", map[string]any{"token": cfg.Token, "id": id, "action": action, "reason": reason}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, fmt.Sprintf("/api/write-back/%d/approve", id), map[string]any{"action": action, "reason": reason}, out)
}

func doAuditList(ctx context.Context, cfg cliConfig, limit int, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "audit.list", map[string]any{"token": cfg.Token, "limit": limit}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, fmt.Sprintf("/api/audit/logs?limit=%d", limit), nil, out)
}

func uintToString(v uint) string {
	return fmt.Sprintf("%d", v)
}
