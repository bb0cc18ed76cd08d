package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions. The engine reads these; the authoring
			-- surface owns writes.
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				trigger_type VARCHAR(50) NOT NULL DEFAULT 'manual',
				trigger_config JSONB,
				version INT NOT NULL DEFAULT 1,
				tags JSONB,
				last_run_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_owner_id ON workflows(owner_id);
			CREATE INDEX idx_workflows_status ON workflows(status);

			CREATE TABLE workflow_nodes (
				id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				parent_node_id VARCHAR(255),
				node_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				config JSONB DEFAULT '{}',
				input_schema JSONB,
				output_schema JSONB,
				position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
				position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_nodes_workflow_id ON workflow_nodes(workflow_id);

			CREATE TABLE workflow_executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input_data JSONB NOT NULL DEFAULT '{}',
				output_data JSONB NOT NULL DEFAULT '{}',
				error_message TEXT NOT NULL DEFAULT '',
				trigger_source VARCHAR(50) NOT NULL,
				execution_context JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_user_id ON workflow_executions(user_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
			CREATE INDEX idx_workflow_executions_started_at ON workflow_executions(started_at);

			CREATE TABLE node_executions (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_name VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input_data JSONB NOT NULL DEFAULT '{}',
				output_data JSONB NOT NULL DEFAULT '{}',
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INT NOT NULL DEFAULT 0,
				logs JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_node_executions_execution_id ON node_executions(execution_id);
			CREATE INDEX idx_node_executions_status ON node_executions(status);

			CREATE TABLE execution_metrics (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				date DATE NOT NULL,
				total_executions INT NOT NULL DEFAULT 0,
				successful_executions INT NOT NULL DEFAULT 0,
				failed_executions INT NOT NULL DEFAULT 0,
				avg_duration_ns BIGINT NOT NULL DEFAULT 0,
				total_duration_ns BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, user_id, date)
			);

			CREATE INDEX idx_execution_metrics_user_date ON execution_metrics(user_id, date);
		`,
	}
}
