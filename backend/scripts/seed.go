package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"prompt-lineage/backend/internal/lineage"
	"prompt-lineage/backend/internal/store"
	"prompt-lineage/backend/pkg/config"
	"prompt-lineage/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

func main() {
	sample := flag.Bool("sample", false, "Seed a sample lineage chain in addition to the schema")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Create constraints
	log.Info("Creating constraints...")
	if err := createConstraints(ctx, driver); err != nil {
		log.Warn("Failed to create some constraints (may already exist)", zap.Error(err))
	}

	// Create indexes for better performance
	log.Info("Creating indexes...")
	if err := createIndexes(ctx, driver); err != nil {
		log.Warn("Failed to create some indexes (may already exist)", zap.Error(err))
	}

	if *sample {
		if err := seedSampleLineage(ctx, driver, log); err != nil {
			log.Fatal("Failed to seed sample lineage", zap.Error(err))
		}
	}

	log.Info("Seeding complete")
	os.Exit(0)
}

// createConstraints creates uniqueness constraints for the lineage schema
func createConstraints(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT prompt_version_id_unique IF NOT EXISTS FOR (v:PromptVersion) REQUIRE v.id IS UNIQUE",
		"CREATE CONSTRAINT decision_event_ref_unique IF NOT EXISTS FOR (d:DecisionEvent) REQUIRE d.execution_ref IS UNIQUE",
	}

	for _, constraint := range constraints {
		_, err := session.Run(ctx, constraint, nil)
		if err != nil {
			// Constraints may already exist
			continue
		}
	}

	return nil
}

// createIndexes creates Neo4j indexes for better query performance
func createIndexes(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX prompt_version_hash IF NOT EXISTS FOR (v:PromptVersion) ON (v.content_hash)",
		"CREATE INDEX prompt_version_created IF NOT EXISTS FOR (v:PromptVersion) ON (v.created_at)",
		"CREATE INDEX decision_event_session IF NOT EXISTS FOR (d:DecisionEvent) ON (d.session_id)",
		"CREATE INDEX decision_event_recorded IF NOT EXISTS FOR (d:DecisionEvent) ON (d.recorded_at)",
		"CREATE INDEX evolution_edge_computed IF NOT EXISTS FOR ()-[e:EVOLVED_TO]-() ON (e.computed_at)",
	}

	for _, index := range indexes {
		_, err := session.Run(ctx, index, nil)
		if err != nil {
			continue
		}
	}

	return nil
}

// seedSampleLineage writes a small three-version chain so a fresh install
// has something to inspect
func seedSampleLineage(ctx context.Context, driver neo4j.DriverWithContext, log *zap.Logger) error {
	backing := store.NewNeo4jStore(driver)
	now := time.Now().UTC()

	contents := []string{
		"Write a short story about a lighthouse keeper.",
		"Write a short story about a lighthouse keeper who finds a message in a bottle.",
		"Write a short story, in first person, about a lighthouse keeper who finds a message in a bottle.",
	}

	versions := make([]lineage.PromptVersion, len(contents))
	for i, content := range contents {
		versions[i] = lineage.PromptVersion{
			ID:          lineage.NodeID(uuid.New().String()),
			Content:     content,
			ContentHash: lineage.HashContent(content),
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
		}
		log.Info("Seeding version", zap.String("id", string(versions[i].ID)))
		if err := backing.SaveVersion(ctx, versions[i]); err != nil {
			return err
		}
	}

	for i := 1; i < len(versions); i++ {
		edge := lineage.EvolutionEdge{
			ID:         lineage.EdgeID(uuid.New().String()),
			Source:     versions[i-1].ID,
			Target:     versions[i].ID,
			Kind:       lineage.KindRefines,
			Confidence: 0.9,
			ComputedAt: versions[i].CreatedAt,
		}
		log.Info("Seeding edge",
			zap.String("source", string(edge.Source)),
			zap.String("target", string(edge.Target)),
		)
		if err := backing.SaveEdge(ctx, edge); err != nil {
			return err
		}
	}

	return nil
}
