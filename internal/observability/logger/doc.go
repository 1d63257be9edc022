// Package logger provides the process-wide zap logger used by every postmesh service.
//
// # Design
//
//   - Singleton: Una sola instancia global inicializada con Init(); L() cae a un logger dev.
//   - Context Scoping: el middleware HTTP y el dispatcher de eventos inyectan un logger
//     "scoped" (request_id, routing_key, queue...) con ToContext; el resto usa From(ctx).
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//
// # Usage
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "search"})
//	defer logger.Sync()
//
//	log := logger.From(ctx)
//	log.Info("projection applied", logger.PostID(id), logger.RoutingKey(key))
package logger
