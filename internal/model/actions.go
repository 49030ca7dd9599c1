package model

// ActionsFor returns the suggested remediation steps for a category.
// The switch covers every Category; unknown values get a generic review step.
func ActionsFor(c Category) []string {
	switch c {
	case CategoryDatabase:
		return []string{
			"Reiniciar conexões com o banco de dados",
			"Verificar queries lentas",
			"Checar status do servidor de banco de dados",
		}
	case CategoryPerformance:
		return []string{
			"Verificar endpoints mais lentos",
			"Analisar uso de recursos do servidor",
			"Revisar cache das páginas do cardápio",
		}
	case CategorySecurity:
		return []string{
			"Bloquear IP suspeito",
			"Revisar logs de acesso",
			"Forçar troca de senha dos administradores",
		}
	case CategoryBusiness:
		return []string{
			"Verificar fila de pedidos na cozinha",
			"Contatar entregadores disponíveis",
			"Conferir status da loja online",
		}
	case CategorySystem:
		return []string{
			"Liberar espaço em disco",
			"Verificar processos com alto consumo",
			"Reiniciar serviços degradados",
		}
	}
	return []string{"Revisar o alerta manualmente"}
}
