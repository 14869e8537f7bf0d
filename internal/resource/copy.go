package resource

import "github.com/argus-vision/argus/models"

// Defensive copies. Readers and subscribers never alias stored slices or
// maps. Detection confidences are clamped on the way out; the store accepts
// out-of-range values on ingestion (best-effort pipelines).

func copyDetection(d models.Detection) models.Detection {
	if len(d.BoundingBoxes) > 0 {
		boxes := make([]models.BoundingBox, len(d.BoundingBoxes))
		copy(boxes, d.BoundingBoxes)
		d.BoundingBoxes = boxes
	}
	if len(d.Labels) > 0 {
		labels := make([]string, len(d.Labels))
		copy(labels, d.Labels)
		d.Labels = labels
	}
	if len(d.Confidences) > 0 {
		confs := make([]float64, len(d.Confidences))
		for i, c := range d.Confidences {
			confs[i] = models.ClampConfidence(c)
		}
		d.Confidences = confs
	}
	return d
}

func copySummary(v models.VideoSummary) models.VideoSummary {
	if len(v.KeyMoments) > 0 {
		moments := make([]models.KeyMoment, len(v.KeyMoments))
		copy(moments, v.KeyMoments)
		v.KeyMoments = moments
	}
	return v
}

func copyWorkflow(w models.ActiveWorkflow) models.ActiveWorkflow {
	w.Config = cloneMap(w.Config)
	return w
}

func copyTrace(t models.NodeExecutionTrace) models.NodeExecutionTrace {
	t.Input = cloneMap(t.Input)
	t.Output = cloneMap(t.Output)
	return t
}

func copyIntegration(in models.Integration) models.Integration {
	in.Config = cloneMap(in.Config)
	return in
}

// cloneMap deep-copies nested maps and slices of the generic JSON shape.
func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		return cloneMap(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
