package alerting

import (
	"fmt"

	"github.com/y001j/pizzeria-alerts/internal/model"
)

// above is true when the metric is present and strictly greater than limit.
// Degraded metrics carry -1 and never cross a positive threshold.
func above(name string, limit float64) model.Condition {
	return func(s model.Snapshot) bool {
		v, ok := s.Number(name)
		return ok && v > limit
	}
}

func atLeast(name string, limit float64) model.Condition {
	return func(s model.Snapshot) bool {
		v, ok := s.Number(name)
		return ok && v >= limit
	}
}

// DefaultRules returns the built-in rule catalog in evaluation order.
func DefaultRules() []model.AlertRule {
	return []model.AlertRule{
		{
			ID:              "db-connection-failed",
			Name:            "Falha de Conexão com Database",
			Category:        model.CategoryDatabase,
			Severity:        model.SeverityCritical,
			CooldownMinutes: 5,
			Enabled:         true,
			Description:     "Não foi possível conectar ao banco de dados",
			Condition: func(s model.Snapshot) bool {
				return s.Bool(model.MetricDBConnectionFailed)
			},
		},
		{
			ID:              "db-slow-queries",
			Name:            "Queries Lentas Detectadas",
			Category:        model.CategoryDatabase,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 15,
			Enabled:         true,
			Description:     "Várias consultas acima do limite de tempo",
			Condition:       above(model.MetricDBSlowQueries, 5),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("%.0f consultas lentas desde a última verificação", s.Float(model.MetricDBSlowQueries))
			},
		},
		{
			ID:              "db-pool-exhausted",
			Name:            "Pool de Conexões Esgotado",
			Category:        model.CategoryDatabase,
			Severity:        model.SeverityCritical,
			CooldownMinutes: 10,
			Enabled:         true,
			Description:     "O pool de conexões do banco está quase cheio",
			Condition:       atLeast(model.MetricDBPoolUsage, 90),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("Uso do pool em %.1f%% (aguardando: %.0f)", s.Float(model.MetricDBPoolUsage), s.Float(model.MetricDBWaitCount))
			},
		},
		{
			ID:              "db-high-latency",
			Name:            "Latência Alta no Database",
			Category:        model.CategoryDatabase,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 10,
			Enabled:         true,
			Description:     "O banco de dados está respondendo devagar",
			Condition:       above(model.MetricDBResponseTimeMs, 1000),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("Tempo de resposta do banco: %.0fms", s.Float(model.MetricDBResponseTimeMs))
			},
		},
		{
			ID:              "high-response-time",
			Name:            "Tempo de Resposta Elevado",
			Category:        model.CategoryPerformance,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 10,
			Enabled:         true,
			Description:     "A API está respondendo acima do esperado",
			Condition:       above(model.MetricAvgResponseTimeMs, 2000),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("Tempo médio de resposta: %.0fms", s.Float(model.MetricAvgResponseTimeMs))
			},
		},
		{
			ID:              "high-error-rate",
			Name:            "Taxa de Erros Elevada",
			Category:        model.CategoryPerformance,
			Severity:        model.SeverityCritical,
			CooldownMinutes: 10,
			Enabled:         true,
			Description:     "Muitas requisições terminando em erro",
			Condition:       above(model.MetricErrorRate, 5),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("Taxa de erros em %.1f%% (%.0f req/min)", s.Float(model.MetricErrorRate), s.Float(model.MetricRequestsPerMinute))
			},
		},
		{
			ID:              "high-cpu-usage",
			Name:            "Uso de CPU Elevado",
			Category:        model.CategorySystem,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 15,
			Enabled:         true,
			Description:     "O servidor está com CPU alta",
			Condition:       above(model.MetricCPUUsage, 85),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("CPU em %.1f%% (load1 %.2f)", s.Float(model.MetricCPUUsage), s.Float(model.MetricLoadAvg1))
			},
		},
		{
			ID:              "high-memory-usage",
			Name:            "Uso de Memória Elevado",
			Category:        model.CategorySystem,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 15,
			Enabled:         true,
			Description:     "O servidor está com pouca memória livre",
			Condition:       above(model.MetricMemoryUsage, 90),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("Memória em %.1f%%", s.Float(model.MetricMemoryUsage))
			},
		},
		{
			ID:              "disk-space-low",
			Name:            "Pouco Espaço em Disco",
			Category:        model.CategorySystem,
			Severity:        model.SeverityCritical,
			CooldownMinutes: 60,
			Enabled:         true,
			Description:     "O disco do servidor está quase cheio",
			Condition:       above(model.MetricDiskUsage, 90),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("Disco em %.1f%%", s.Float(model.MetricDiskUsage))
			},
		},
		{
			ID:              "failed-logins",
			Name:            "Muitas Falhas de Login",
			Category:        model.CategorySecurity,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 15,
			Enabled:         true,
			Description:     "Tentativas de login falhando em sequência",
			Condition:       above(model.MetricFailedLogins, 10),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("%.0f falhas de login na última janela", s.Float(model.MetricFailedLogins))
			},
		},
		{
			ID:              "suspicious-activity",
			Name:            "Atividade Suspeita",
			Category:        model.CategorySecurity,
			Severity:        model.SeverityCritical,
			CooldownMinutes: 30,
			Enabled:         true,
			Description:     "Volume anormal de requisições suspeitas",
			Condition:       above(model.MetricSuspiciousRequests, 20),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("%.0f requisições suspeitas na última janela", s.Float(model.MetricSuspiciousRequests))
			},
		},
		{
			ID:              "pending-orders-backlog",
			Name:            "Pedidos Pendentes Acumulados",
			Category:        model.CategoryBusiness,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 15,
			Enabled:         true,
			Description:     "Muitos pedidos aguardando preparo",
			Condition:       above(model.MetricPendingOrders, 20),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("%.0f pedidos pendentes", s.Float(model.MetricPendingOrders))
			},
		},
		{
			ID:              "delivery-delays",
			Name:            "Atrasos nas Entregas",
			Category:        model.CategoryBusiness,
			Severity:        model.SeverityWarning,
			CooldownMinutes: 30,
			Enabled:         true,
			Description:     "O tempo médio de entrega está acima do aceitável",
			Condition:       above(model.MetricAvgDeliveryMinutes, 60),
			Message: func(s model.Snapshot) string {
				return fmt.Sprintf("Tempo médio de entrega: %.0f minutos", s.Float(model.MetricAvgDeliveryMinutes))
			},
		},
		{
			ID:              "no-orders-business-hours",
			Name:            "Nenhum Pedido no Horário de Funcionamento",
			Category:        model.CategoryBusiness,
			Severity:        model.SeverityInfo,
			CooldownMinutes: 60,
			Enabled:         true,
			Description:     "Nenhum pedido recebido na última hora com a loja aberta",
			Condition: func(s model.Snapshot) bool {
				orders, ok := s.Number(model.MetricOrdersLastHour)
				return ok && orders == 0 && s.Bool(model.MetricBusinessHours)
			},
		},
	}
}
