package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsAgentRunsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_runs_succeeded",
		Help:         "stats_agent_runs_succeeded provides total agent runs succeeded",
		RequiredTags: []string{"agent"},
	}

	StatsAgentRunsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_runs_failed",
		Help:         "stats_agent_runs_failed provides total agent runs failed",
		RequiredTags: []string{"agent"},
	}

	StatsAgentBudgetExhausted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_budget_exhausted",
		Help:         "stats_agent_budget_exhausted provides total agent runs stopped at the iteration bound",
		RequiredTags: []string{"agent"},
	}

	StatsAgentRunsCancelled = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_runs_cancelled",
		Help:         "stats_agent_runs_cancelled provides total agent runs cancelled by the caller",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsRegistryToolsDiscovered = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_registry_tools_discovered",
		Help:         "stats_registry_tools_discovered provides total tools discovered from registry endpoints",
		RequiredTags: []string{"server"},
	}

	StatsRegistryErrors = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_registry_errors",
		Help:         "stats_registry_errors provides total registry connection and protocol errors",
		RequiredTags: []string{"server", "reason"},
	}

	StatsToolCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_cache_hits",
		Help:         "stats_tool_cache_hits provides total tool result cache hits",
		RequiredTags: []string{"tool"},
	}

	StatsToolCacheMisses = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_cache_misses",
		Help:         "stats_tool_cache_misses provides total tool result cache misses",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfAgentRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_agent_run",
		Help:         "perf_agent_run provides duration of agent run",
		RequiredTags: []string{"agent"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfRegistryDiscover = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_registry_discover",
		Help:         "perf_registry_discover provides duration of registry discovery",
		RequiredTags: []string{"server"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAgentRun,
	&PerfRegistryDiscover,
	&PerfToolCall,
	&StatsAgentBudgetExhausted,
	&StatsAgentRunsCancelled,
	&StatsAgentRunsFailed,
	&StatsAgentRunsSucceeded,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsRegistryErrors,
	&StatsRegistryToolsDiscovered,
	&StatsToolCacheHits,
	&StatsToolCacheMisses,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
