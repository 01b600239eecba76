package v1

import (
	context "context"

	http "github.com/go-kratos/kratos/v2/transport/http"
)

const OperationWeatherServiceGetWeather = "/moometrics.v1.WeatherService/GetWeather"
const OperationPredictionServicePredictPlanting = "/moometrics.v1.PredictionService/PredictPlanting"
const OperationTaskServiceSubmitReport = "/moometrics.v1.TaskService/SubmitReport"
const OperationTaskServiceSubmitPrediction = "/moometrics.v1.TaskService/SubmitPrediction"
const OperationTaskServiceGetTask = "/moometrics.v1.TaskService/GetTask"
const OperationTaskServiceRevokeTask = "/moometrics.v1.TaskService/RevokeTask"
const OperationOpsServiceListDeadLetters = "/moometrics.v1.OpsService/ListDeadLetters"
const OperationOpsServiceListBreakers = "/moometrics.v1.OpsService/ListBreakers"
const OperationOpsServiceHealth = "/moometrics.v1.OpsService/Health"

type WeatherServiceHTTPServer interface {
	GetWeather(context.Context, *GetWeatherRequest) (*WeatherReply, error)
}

func RegisterWeatherServiceHTTPServer(s *http.Server, srv WeatherServiceHTTPServer) {
	r := s.Route("/")
	r.GET("/api/weather", _WeatherService_GetWeather0_HTTP_Handler(srv))
}

func _WeatherService_GetWeather0_HTTP_Handler(srv WeatherServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GetWeatherRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationWeatherServiceGetWeather)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetWeather(ctx, req.(*GetWeatherRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*WeatherReply)
		return ctx.Result(200, reply)
	}
}

type PredictionServiceHTTPServer interface {
	PredictPlanting(context.Context, *PlantingPredictionRequest) (*PlantingPredictionReply, error)
}

func RegisterPredictionServiceHTTPServer(s *http.Server, srv PredictionServiceHTTPServer) {
	r := s.Route("/")
	r.POST("/api/predictions/planting", _PredictionService_PredictPlanting0_HTTP_Handler(srv))
}

func _PredictionService_PredictPlanting0_HTTP_Handler(srv PredictionServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in PlantingPredictionRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationPredictionServicePredictPlanting)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.PredictPlanting(ctx, req.(*PlantingPredictionRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*PlantingPredictionReply)
		return ctx.Result(200, reply)
	}
}

type TaskServiceHTTPServer interface {
	SubmitReport(context.Context, *SubmitReportRequest) (*SubmitTaskReply, error)
	SubmitPrediction(context.Context, *SubmitPredictionRequest) (*SubmitTaskReply, error)
	GetTask(context.Context, *TaskRequest) (*TaskReply, error)
	RevokeTask(context.Context, *TaskRequest) (*TaskReply, error)
}

func RegisterTaskServiceHTTPServer(s *http.Server, srv TaskServiceHTTPServer) {
	r := s.Route("/")
	r.POST("/api/v1/tasks/mock-report", _TaskService_SubmitReport0_HTTP_Handler(srv))
	r.POST("/api/v1/tasks/mock-prediction", _TaskService_SubmitPrediction0_HTTP_Handler(srv))
	r.GET("/api/v1/tasks/{id}", _TaskService_GetTask0_HTTP_Handler(srv))
	r.DELETE("/api/v1/tasks/{id}", _TaskService_RevokeTask0_HTTP_Handler(srv))
}

func _TaskService_SubmitReport0_HTTP_Handler(srv TaskServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in SubmitReportRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationTaskServiceSubmitReport)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.SubmitReport(ctx, req.(*SubmitReportRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*SubmitTaskReply)
		return ctx.Result(202, reply)
	}
}

func _TaskService_SubmitPrediction0_HTTP_Handler(srv TaskServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in SubmitPredictionRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationTaskServiceSubmitPrediction)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.SubmitPrediction(ctx, req.(*SubmitPredictionRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*SubmitTaskReply)
		return ctx.Result(202, reply)
	}
}

func _TaskService_GetTask0_HTTP_Handler(srv TaskServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in TaskRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationTaskServiceGetTask)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetTask(ctx, req.(*TaskRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*TaskReply)
		return ctx.Result(200, reply)
	}
}

func _TaskService_RevokeTask0_HTTP_Handler(srv TaskServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in TaskRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationTaskServiceRevokeTask)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.RevokeTask(ctx, req.(*TaskRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*TaskReply)
		return ctx.Result(200, reply)
	}
}

type OpsServiceHTTPServer interface {
	ListDeadLetters(context.Context, *ListDeadLettersRequest) (*ListDeadLettersReply, error)
	ListBreakers(context.Context, *HealthRequest) (*ListBreakersReply, error)
	Health(context.Context, *HealthRequest) (*HealthReply, error)
}

func RegisterOpsServiceHTTPServer(s *http.Server, srv OpsServiceHTTPServer) {
	r := s.Route("/")
	r.GET("/api/v1/dead-letters", _OpsService_ListDeadLetters0_HTTP_Handler(srv))
	r.GET("/api/v1/breakers", _OpsService_ListBreakers0_HTTP_Handler(srv))
	r.GET("/health", _OpsService_Health0_HTTP_Handler(srv))
}

func _OpsService_ListDeadLetters0_HTTP_Handler(srv OpsServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ListDeadLettersRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationOpsServiceListDeadLetters)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ListDeadLetters(ctx, req.(*ListDeadLettersRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*ListDeadLettersReply)
		return ctx.Result(200, reply)
	}
}

func _OpsService_ListBreakers0_HTTP_Handler(srv OpsServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in HealthRequest
		http.SetOperation(ctx, OperationOpsServiceListBreakers)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ListBreakers(ctx, req.(*HealthRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*ListBreakersReply)
		return ctx.Result(200, reply)
	}
}

func _OpsService_Health0_HTTP_Handler(srv OpsServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in HealthRequest
		http.SetOperation(ctx, OperationOpsServiceHealth)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Health(ctx, req.(*HealthRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		reply := out.(*HealthReply)
		return ctx.Result(200, reply)
	}
}
