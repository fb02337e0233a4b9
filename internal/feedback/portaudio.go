package feedback

import (
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 512

// paSink writes to the default output device through a blocking stream.
type paSink struct {
	stream *portaudio.Stream
	buf    []float32
}

func openPortAudio() (Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, SampleRate, len(buf), buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, err
	}
	return &paSink{stream: stream, buf: buf}, nil
}

func (p *paSink) Play(samples []float32) error {
	for off := 0; off < len(samples); off += len(p.buf) {
		n := copy(p.buf, samples[off:])
		clear(p.buf[n:])
		if err := p.stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

func (p *paSink) Close() error {
	_ = p.stream.Stop()
	err := p.stream.Close()
	_ = portaudio.Terminate()
	return err
}
