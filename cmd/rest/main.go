package main

import (
	"context"
	"log"

	"ai-lecture-be/internal/bootstrap"
	"ai-lecture-be/internal/config"
	"ai-lecture-be/internal/server"
	"ai-lecture-be/internal/tracer"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer("ai-lecture-be")
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	// Note: In a larger app, we might use an errgroup or supervisor here
	go container.BridgeListener.Run(context.Background())

	go func() {
		log.Println("Background: Starting Consumer Service...")
		if err := container.ConsumerService.Consume(context.Background()); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	// 4. Attach Pipeline Workers
	// The rest process consumes jobs too, so a single-process deployment
	// works out of the box. Scale out by running cmd/worker alongside;
	// durable consumers share the work.
	if err := container.JobSubscriber.Subscribe(cfg.Pipeline.PlanSubject, "lecture-planner",
		cfg.Pipeline.PlanWorkers, container.PipelineService.HandlePlanJob); err != nil {
		log.Printf("Background Plan Consumer Error: %v", err)
	}
	if err := container.JobSubscriber.Subscribe(cfg.Pipeline.GenerateSubject, "lecture-generator",
		cfg.Pipeline.GenerateWorkers, container.PipelineService.HandleGenerateJob); err != nil {
		log.Printf("Background Generate Consumer Error: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
