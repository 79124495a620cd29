package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"ai-lecture-be/internal/bootstrap"
	"ai-lecture-be/internal/config"
)

// Standalone generation worker. Consumes plan/generate jobs from JetStream
// and publishes finished content over the Redis event bridge, so it can run
// on a separate machine from the process holding the websocket connections.
func main() {
	cfg := config.Load()

	container := bootstrap.NewWorkerContainer(cfg)
	defer container.JobPublisher.Close()
	defer container.JobSubscriber.Close()

	if err := container.JobSubscriber.Subscribe(cfg.Pipeline.PlanSubject, "lecture-planner",
		cfg.Pipeline.PlanWorkers, container.PipelineService.HandlePlanJob); err != nil {
		log.Fatalf("Failed to subscribe plan consumer: %v", err)
	}
	if err := container.JobSubscriber.Subscribe(cfg.Pipeline.GenerateSubject, "lecture-generator",
		cfg.Pipeline.GenerateWorkers, container.PipelineService.HandleGenerateJob); err != nil {
		log.Fatalf("Failed to subscribe generate consumer: %v", err)
	}

	log.Printf("Worker started: stream=%s plan_workers=%d generate_workers=%d",
		cfg.Pipeline.StreamName, cfg.Pipeline.PlanWorkers, cfg.Pipeline.GenerateWorkers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Worker shutting down")
}
